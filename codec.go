package ct

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// The TLS-style encodings of RFC 6962 §3. All integers are big-endian.
// Encoders fail when a length does not fit its prefix; decoders fail on
// truncation, trailing bytes and out-of-range enum values.

func (d *DigitallySigned) marshal(b *cryptobyte.Builder) {
	b.AddUint8(uint8(d.HashAlgorithm))
	b.AddUint8(uint8(d.SignatureAlgorithm))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(d.Signature)
	})
}

// unmarshal reads a DigitallySigned from s, advancing it. Extra bytes
// after the structure are left in s.
func (d *DigitallySigned) unmarshal(s *cryptobyte.String) error {
	var (
		hashAlg, sigAlg uint8
	)
	if !s.ReadUint8(&hashAlg) ||
		!s.ReadUint8(&sigAlg) ||
		!copyUint16LengthPrefixed(s, &d.Signature) {
		return ErrTruncated
	}
	if hashAlg > uint8(HashSHA512) {
		return fmt.Errorf("unknown hash algorithm %d", hashAlg)
	}
	if sigAlg > uint8(SigECDSA) {
		return fmt.Errorf("unknown signature algorithm %d", sigAlg)
	}
	d.HashAlgorithm = HashAlgorithm(hashAlg)
	d.SignatureAlgorithm = SignatureAlgorithm(sigAlg)
	return nil
}

func (d *DigitallySigned) MarshalBinary() ([]byte, error) {
	var b cryptobyte.Builder
	d.marshal(&b)
	return b.Bytes()
}

func (d *DigitallySigned) UnmarshalBinary(data []byte) error {
	s := cryptobyte.String(data)
	if err := d.unmarshal(&s); err != nil {
		return err
	}
	if !s.Empty() {
		return ErrExtraBytes
	}
	return nil
}

func (e *SignedEntry) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(e.Type))
	switch e.Type {
	case X509EntryType:
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(e.LeafCertificate)
		})
	case PrecertEntryType:
		b.AddBytes(e.IssuerKeyHash[:])
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(e.TBSCertificate)
		})
	default:
		b.SetError(fmt.Errorf("unknown entry type %d", e.Type))
	}
}

// MarshalBinary returns the serialized log entry as signed by a log.
func (e *SignedEntry) MarshalBinary() ([]byte, error) {
	var b cryptobyte.Builder
	e.marshal(&b)
	return b.Bytes()
}

func (e *SignedEntry) UnmarshalBinary(data []byte) error {
	s := cryptobyte.String(data)
	if err := e.unmarshal(&s); err != nil {
		return err
	}
	if !s.Empty() {
		return ErrExtraBytes
	}
	return nil
}

func (e *SignedEntry) unmarshal(s *cryptobyte.String) error {
	var entryType uint16
	if !s.ReadUint16(&entryType) {
		return ErrTruncated
	}
	switch LogEntryType(entryType) {
	case X509EntryType:
		e.Type = X509EntryType
		if !copyUint24LengthPrefixed(s, &e.LeafCertificate) {
			return ErrTruncated
		}
	case PrecertEntryType:
		e.Type = PrecertEntryType
		var hash []byte
		if !s.ReadBytes(&hash, HashLen) ||
			!copyUint24LengthPrefixed(s, &e.TBSCertificate) {
			return ErrTruncated
		}
		copy(e.IssuerKeyHash[:], hash)
	default:
		return fmt.Errorf("unknown entry type %d", entryType)
	}
	return nil
}

// MarshalBinary returns the canonical encoding of the leaf, the exact
// bytes hashed into a log's Merkle tree.
func (l *MerkleTreeLeaf) MarshalBinary() ([]byte, error) {
	if l.Version != V1 {
		return nil, fmt.Errorf("unsupported version %d", l.Version)
	}
	if l.LeafType != TimestampedEntryType {
		return nil, fmt.Errorf("unknown leaf type %d", l.LeafType)
	}
	var b cryptobyte.Builder
	b.AddUint8(uint8(l.Version))
	b.AddUint8(uint8(l.LeafType))
	b.AddUint64(l.Timestamp)
	l.Entry.marshal(&b)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(l.Extensions)
	})
	return b.Bytes()
}

func (l *MerkleTreeLeaf) UnmarshalBinary(data []byte) error {
	var (
		version, leafType uint8
	)
	s := cryptobyte.String(data)
	if !s.ReadUint8(&version) {
		return ErrTruncated
	}
	if Version(version) != V1 {
		return fmt.Errorf("unsupported version %d", version)
	}
	if !s.ReadUint8(&leafType) {
		return ErrTruncated
	}
	if MerkleLeafType(leafType) != TimestampedEntryType {
		return fmt.Errorf("unknown leaf type %d", leafType)
	}
	l.Version = Version(version)
	l.LeafType = MerkleLeafType(leafType)
	if !s.ReadUint64(&l.Timestamp) {
		return ErrTruncated
	}
	if err := l.Entry.unmarshal(&s); err != nil {
		return err
	}
	if !copyUint16LengthPrefixed(&s, &l.Extensions) {
		return ErrTruncated
	}
	if !s.Empty() {
		return ErrExtraBytes
	}
	return nil
}

// SignatureInput returns the exact bytes a log's SCT signature is computed
// over: the V1 certificate_timestamp signed data for the given serialized
// log entry. serializedEntry must be the output of SignedEntry.MarshalBinary.
func SignatureInput(timestamp uint64, serializedEntry, extensions []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(V1))
	b.AddUint8(uint8(CertificateTimestampSignatureType))
	b.AddUint64(timestamp)
	b.AddBytes(serializedEntry)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(extensions)
	})
	return b.Bytes()
}

// TreeHeadSignatureInput returns the bytes a log's tree head signature is
// computed over.
func TreeHeadSignatureInput(sth *SignedTreeHead) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(sth.Version))
	b.AddUint8(uint8(TreeHashSignatureType))
	b.AddUint64(sth.Timestamp)
	b.AddUint64(sth.TreeSize)
	b.AddBytes(sth.RootHash[:])
	return b.Bytes()
}

// SCTList is a list of serialized SCTs as carried in a certificate
// extension, an OCSP extension or a TLS extension.
//
// The framing is strict: an empty list, a zero-length item, a length
// mismatch or trailing bytes invalidate the whole list. The items
// themselves are not decoded here.
type SCTList [][]byte

var (
	errEmptySCTList = errors.New("SCT list is empty")
	errEmptySCT     = errors.New("SCT list contains an empty item")
)

func (l SCTList) MarshalBinary() ([]byte, error) {
	if len(l) == 0 {
		return nil, errEmptySCTList
	}
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, item := range l {
			if len(item) == 0 {
				b.SetError(errEmptySCT)
				return
			}
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(item)
			})
		}
	})
	return b.Bytes()
}

func (l *SCTList) UnmarshalBinary(data []byte) error {
	var list cryptobyte.String
	s := cryptobyte.String(data)
	if !s.ReadUint16LengthPrefixed(&list) {
		return ErrTruncated
	}
	if !s.Empty() {
		return ErrExtraBytes
	}
	if list.Empty() {
		return errEmptySCTList
	}
	*l = nil
	for !list.Empty() {
		var item []byte
		if !copyUint16LengthPrefixed(&list, &item) {
			return ErrTruncated
		}
		if len(item) == 0 {
			return errEmptySCT
		}
		*l = append(*l, item)
	}
	return nil
}

func (sct *SignedCertificateTimestamp) MarshalBinary() ([]byte, error) {
	if sct.Version != V1 {
		return nil, fmt.Errorf("unsupported version %d", sct.Version)
	}
	var b cryptobyte.Builder
	b.AddUint8(uint8(sct.Version))
	b.AddBytes(sct.LogID[:])
	b.AddUint64(sct.Timestamp)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(sct.Extensions)
	})
	sct.Signature.marshal(&b)
	return b.Bytes()
}

func (sct *SignedCertificateTimestamp) UnmarshalBinary(data []byte) error {
	var (
		version uint8
		logID   []byte
	)
	s := cryptobyte.String(data)
	if !s.ReadUint8(&version) {
		return ErrTruncated
	}
	if Version(version) != V1 {
		return fmt.Errorf("unsupported version %d", version)
	}
	sct.Version = Version(version)
	if !s.ReadBytes(&logID, LogIDLength) ||
		!s.ReadUint64(&sct.Timestamp) ||
		!copyUint16LengthPrefixed(&s, &sct.Extensions) {
		return ErrTruncated
	}
	copy(sct.LogID[:], logID)
	if err := sct.Signature.unmarshal(&s); err != nil {
		return err
	}
	if !s.Empty() {
		return ErrExtraBytes
	}
	return nil
}

func copyUint16LengthPrefixed(s *cryptobyte.String, out *[]byte) bool {
	var ss cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&ss) {
		return false
	}
	*out = make([]byte, len(ss))
	copy(*out, ss)
	return true
}

func copyUint24LengthPrefixed(s *cryptobyte.String, out *[]byte) bool {
	var ss cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&ss) {
		return false
	}
	*out = make([]byte, len(ss))
	copy(*out, ss)
	return true
}
