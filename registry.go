package ct

// KnownLog is a log we can check signatures from: its id, a name for
// diagnostics, and its public key.
type KnownLog struct {
	ID          LogID
	Description string
	Key         PublicKey
}

// NewKnownLog builds a KnownLog from a DER-encoded SubjectPublicKeyInfo.
func NewKnownLog(spkiDER []byte, description string) (KnownLog, error) {
	key, err := ParsePublicKey(spkiDER)
	if err != nil {
		return KnownLog{}, err
	}
	return KnownLog{
		ID:          KeyID(key),
		Description: description,
		Key:         key,
	}, nil
}

// VerifySCT reports whether sct carries a valid signature by this log over
// the given entry. The timestamp is not judged here.
func (l *KnownLog) VerifySCT(entry *SignedEntry, sct *SignedCertificateTimestamp) bool {
	if sct.Signature.HashAlgorithm != HashSHA256 ||
		sct.Signature.SignatureAlgorithm != l.Key.Algorithm() {
		return false
	}
	serialized, err := entry.MarshalBinary()
	if err != nil {
		return false
	}
	input, err := SignatureInput(sct.Timestamp, serialized, sct.Extensions)
	if err != nil {
		return false
	}
	return l.Key.Verify(input, sct.Signature.Signature) == nil
}

// VerifySTH reports whether sth carries a valid tree head signature by
// this log.
func (l *KnownLog) VerifySTH(sth *SignedTreeHead) bool {
	if sth.Signature.HashAlgorithm != HashSHA256 ||
		sth.Signature.SignatureAlgorithm != l.Key.Algorithm() {
		return false
	}
	input, err := TreeHeadSignatureInput(sth)
	if err != nil {
		return false
	}
	return l.Key.Verify(input, sth.Signature.Signature) == nil
}

// Registry is an immutable set of known logs, keyed by log id. It is safe
// for concurrent use once built.
type Registry struct {
	logs map[LogID]*KnownLog
}

func NewRegistry(logs ...KnownLog) *Registry {
	r := &Registry{logs: make(map[LogID]*KnownLog, len(logs))}
	for i := range logs {
		log := logs[i]
		r.logs[log.ID] = &log
	}
	return r
}

// Lookup returns the log with the given id, if known.
func (r *Registry) Lookup(id LogID) (*KnownLog, bool) {
	log, ok := r.logs[id]
	return log, ok
}

// Len returns the number of known logs.
func (r *Registry) Len() int {
	return len(r.logs)
}
