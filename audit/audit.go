// Package audit persists SCT verdicts on disk so they can be inspected
// or reported later.
package audit

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	bolt "go.etcd.io/bbolt"

	"github.com/certevidence/ct"
)

var verdictsBucket = []byte("verdicts")

// Store records verdicts keyed by the SHA-256 hash of the leaf
// certificate. It implements the verifier's Sink interface.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%s): %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(verdictsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create verdicts bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores the verdicts for a leaf, replacing any earlier record
// for the same certificate.
func (s *Store) Record(leafDER []byte, verdicts []ct.VerifiedSCT) error {
	value, err := encodeVerdicts(verdicts)
	if err != nil {
		return err
	}
	key := sha256.Sum256(leafDER)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(verdictsBucket).Put(key[:], value)
	})
}

// Lookup returns the recorded verdicts for a leaf certificate, if any.
func (s *Store) Lookup(leafDER []byte) ([]ct.VerifiedSCT, bool, error) {
	key := sha256.Sum256(leafDER)
	return s.LookupHash(key[:])
}

// LookupHash is Lookup keyed by the SHA-256 hash of the leaf directly.
func (s *Store) LookupHash(leafHash []byte) ([]ct.VerifiedSCT, bool, error) {
	var key [32]byte
	copy(key[:], leafHash)
	var (
		verdicts []ct.VerifiedSCT
		found    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(verdictsBucket).Get(key[:])
		if value == nil {
			return nil
		}
		found = true
		var err error
		verdicts, err = decodeVerdicts(value)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return verdicts, found, nil
}

// Walk calls fn for every recorded leaf, in hash order. Returning an
// error from fn stops the walk.
func (s *Store) Walk(fn func(leafHash []byte, verdicts []ct.VerifiedSCT) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(verdictsBucket).ForEach(func(k, v []byte) error {
			verdicts, err := decodeVerdicts(v)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			return fn(k, verdicts)
		})
	})
}

// A record is a sequence of (status, origin, serialized SCT) triples.
func encodeVerdicts(verdicts []ct.VerifiedSCT) ([]byte, error) {
	var b cryptobyte.Builder
	for i := range verdicts {
		verdict := &verdicts[i]
		buf, err := verdict.SCT.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.AddUint8(uint8(verdict.Status))
		b.AddUint8(uint8(verdict.SCT.Origin))
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(buf)
		})
	}
	return b.Bytes()
}

func decodeVerdicts(value []byte) ([]ct.VerifiedSCT, error) {
	var verdicts []ct.VerifiedSCT
	s := cryptobyte.String(value)
	for !s.Empty() {
		var (
			status, origin uint8
			buf            cryptobyte.String
		)
		if !s.ReadUint8(&status) || !s.ReadUint8(&origin) ||
			!s.ReadUint16LengthPrefixed(&buf) {
			return nil, ct.ErrTruncated
		}
		var verdict ct.VerifiedSCT
		if err := verdict.SCT.UnmarshalBinary(buf); err != nil {
			return nil, err
		}
		verdict.Status = ct.VerifyStatus(status)
		verdict.SCT.Origin = ct.SCTOrigin(origin)
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}
