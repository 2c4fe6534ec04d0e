// Package ct implements the RFC 6962 structures and signature checks used
// to handle Certificate Transparency evidence: Signed Certificate
// Timestamps, the entries logs sign, and the registry of known logs.
package ct

import (
	"bytes"
	"errors"
	"time"
)

var (
	// ErrTruncated is a parsing error returned when the input seems to have
	// been truncated.
	ErrTruncated = errors.New("Input truncated")

	// ErrExtraBytes is a parsing error returned when there are extraneous
	// bytes at the end of, or within, the data.
	ErrExtraBytes = errors.New("Unexpected extra (internal) bytes")
)

const (
	// LogIDLength is the length of a log id, the SHA-256 hash of the log's
	// public key.
	LogIDLength = 32

	// HashLen is the length of a SHA-256 hash.
	HashLen = 32
)

// LogID identifies a CT log: the SHA-256 hash of the log's public key,
// computed over the DER encoding of its SubjectPublicKeyInfo.
type LogID [LogIDLength]byte

// Version of the CT protocol. Only v1 exists.
type Version uint8

const (
	V1 Version = 0
)

// LogEntryType distinguishes the two kinds of entries a log signs.
type LogEntryType uint16

const (
	X509EntryType    LogEntryType = 0
	PrecertEntryType LogEntryType = 1
)

// MerkleLeafType of a leaf in a log's Merkle tree.
type MerkleLeafType uint8

const (
	TimestampedEntryType MerkleLeafType = 0
)

// SignatureType distinguishes what a log signature covers.
type SignatureType uint8

const (
	CertificateTimestampSignatureType SignatureType = 0
	TreeHashSignatureType             SignatureType = 1
)

// HashAlgorithm as used in a DigitallySigned struct.
type HashAlgorithm uint8

const (
	HashNone   HashAlgorithm = 0
	HashMD5    HashAlgorithm = 1
	HashSHA1   HashAlgorithm = 2
	HashSHA224 HashAlgorithm = 3
	HashSHA256 HashAlgorithm = 4
	HashSHA384 HashAlgorithm = 5
	HashSHA512 HashAlgorithm = 6
)

// SignatureAlgorithm as used in a DigitallySigned struct.
type SignatureAlgorithm uint8

const (
	SigAnonymous SignatureAlgorithm = 0
	SigRSA       SignatureAlgorithm = 1
	SigDSA       SignatureAlgorithm = 2
	SigECDSA     SignatureAlgorithm = 3
)

// DigitallySigned is the TLS digitally-signed struct carrying a log
// signature together with the algorithms it was made with.
type DigitallySigned struct {
	HashAlgorithm      HashAlgorithm
	SignatureAlgorithm SignatureAlgorithm
	Signature          []byte
}

// SignedEntry is the entry a log signed: either a complete leaf
// certificate, or the to-be-signed part of a precertificate with the hash
// of the issuer's key. Type selects which of the two payloads is set.
type SignedEntry struct {
	Type LogEntryType

	// Set for X509EntryType: the leaf certificate DER as submitted.
	LeafCertificate []byte

	// Set for PrecertEntryType.
	IssuerKeyHash  [HashLen]byte
	TBSCertificate []byte
}

// SCTOrigin records through which channel an SCT reached us.
type SCTOrigin uint8

const (
	OriginEmbedded SCTOrigin = iota
	OriginOCSPStaple
	OriginTLSExtension
)

func (o SCTOrigin) String() string {
	switch o {
	case OriginEmbedded:
		return "embedded"
	case OriginOCSPStaple:
		return "ocsp"
	case OriginTLSExtension:
		return "tls-extension"
	}
	return "unknown"
}

// SignedCertificateTimestamp is a log's signed promise to include a
// certificate, as delivered via a certificate extension, a stapled OCSP
// response or a TLS extension.
type SignedCertificateTimestamp struct {
	Version    Version
	LogID      LogID
	Timestamp  uint64 // milliseconds since the Unix epoch
	Extensions []byte
	Signature  DigitallySigned

	// Origin is set by the verifier, not part of the wire encoding.
	Origin SCTOrigin

	// LogDescription is a human-readable name for the log, filled in when
	// the log is known. Informational only: ignored by Equal.
	LogDescription string
}

// Time returns the timestamp as a time.Time.
func (sct *SignedCertificateTimestamp) Time() time.Time {
	return time.UnixMilli(int64(sct.Timestamp))
}

// Equal compares two SCTs field by field, ignoring LogDescription.
func (sct *SignedCertificateTimestamp) Equal(other *SignedCertificateTimestamp) bool {
	return sct.Version == other.Version &&
		sct.LogID == other.LogID &&
		sct.Timestamp == other.Timestamp &&
		bytes.Equal(sct.Extensions, other.Extensions) &&
		sct.Signature.HashAlgorithm == other.Signature.HashAlgorithm &&
		sct.Signature.SignatureAlgorithm == other.Signature.SignatureAlgorithm &&
		bytes.Equal(sct.Signature.Signature, other.Signature.Signature) &&
		sct.Origin == other.Origin
}

// MerkleTreeLeaf is the hashable unit of a log's Merkle tree: a
// timestamped entry together with its extensions.
type MerkleTreeLeaf struct {
	Version    Version
	LeafType   MerkleLeafType
	Timestamp  uint64
	Entry      SignedEntry
	Extensions []byte
}

// MerkleTreeLeafFor returns the leaf a log hashes into its tree for the
// given entry and the SCT it issued over it.
func MerkleTreeLeafFor(entry SignedEntry, sct *SignedCertificateTimestamp) *MerkleTreeLeaf {
	return &MerkleTreeLeaf{
		Version:    V1,
		LeafType:   TimestampedEntryType,
		Timestamp:  sct.Timestamp,
		Entry:      entry,
		Extensions: sct.Extensions,
	}
}

// SignedTreeHead is a log's signed statement over the root of its tree.
type SignedTreeHead struct {
	Version   Version
	Timestamp uint64
	TreeSize  uint64
	RootHash  [HashLen]byte
	Signature DigitallySigned
}

// VerifyStatus is the per-SCT verdict. The numeric values are recorded in
// audit logs and metrics and must not be renumbered. Value 2 is reserved.
type VerifyStatus uint8

const (
	// StatusNone is the zero value, never a valid verdict.
	StatusNone VerifyStatus = 0

	// StatusLogUnknown means the SCT named a log we have no key for.
	StatusLogUnknown VerifyStatus = 1

	// StatusOK means the SCT is from a known log, carries a valid
	// signature, and is not dated in the future.
	StatusOK VerifyStatus = 3

	// StatusInvalidSignature means the signature did not verify against
	// the known log's key.
	StatusInvalidSignature VerifyStatus = 4

	// StatusInvalidTimestamp means the signature verified, but the SCT
	// claims a time in the future.
	StatusInvalidTimestamp VerifyStatus = 5
)

func (s VerifyStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusLogUnknown:
		return "log-unknown"
	case StatusOK:
		return "ok"
	case StatusInvalidSignature:
		return "invalid-signature"
	case StatusInvalidTimestamp:
		return "invalid-timestamp"
	}
	return "unknown"
}

// VerifiedSCT pairs an SCT with its verdict.
type VerifiedSCT struct {
	SCT    SignedCertificateTimestamp
	Status VerifyStatus
}
