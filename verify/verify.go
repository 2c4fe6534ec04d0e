// Package verify turns the Certificate Transparency evidence of a
// connection into per-SCT verdicts.
package verify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/certevidence/ct"
	"github.com/certevidence/ct/extract"
)

// Observer is notified of every verdict. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveVerdict(origin ct.SCTOrigin, status ct.VerifyStatus)
}

// Sink records the verdicts for a leaf, for example in an audit store.
type Sink interface {
	Record(leafDER []byte, verdicts []ct.VerifiedSCT) error
}

// Input is the evidence collected from one connection. LeafDER is
// required; the rest is optional. IssuerDER is needed to judge embedded
// SCTs and stapled OCSP responses.
type Input struct {
	LeafDER      []byte
	IssuerDER    []byte
	OCSPResponse []byte // stapled OCSP response, DER
	TLSSCTList   []byte // raw SCT list from the signed_certificate_timestamp TLS extension
}

// Verifier checks SCTs against a set of known logs.
type Verifier struct {
	registry *ct.Registry
	observer Observer
	sink     Sink
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Verifier)

// WithObserver notifies o of every verdict.
func WithObserver(o Observer) Option {
	return func(v *Verifier) { v.observer = o }
}

// WithSink records verdicts in s after each verification.
func WithSink(s Sink) Option {
	return func(v *Verifier) { v.sink = s }
}

// WithClock overrides the time source used to judge timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithLogger sets the logger for diagnostics about malformed evidence.
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

func New(registry *ct.Registry, opts ...Option) *Verifier {
	v := &Verifier{
		registry: registry,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify gathers the SCTs from all evidence channels of in and returns
// one verdict per SCT, in a deterministic order: embedded SCTs first,
// then SCTs from the stapled OCSP response, then SCTs from the TLS
// extension, each in the order they appear in their list.
//
// Missing or malformed evidence is never an error, it just contributes
// no verdicts: a channel whose SCT list has broken framing yields
// nothing, a well-framed list with some undecodable items yields
// verdicts for the items that do decode, and embedded SCTs are skipped
// when no issuer is supplied to reconstruct the signed entry. Verify
// fails only on a missing leaf or a failing sink.
func (v *Verifier) Verify(in Input) ([]ct.VerifiedSCT, error) {
	if len(in.LeafDER) == 0 {
		return nil, errors.New("no leaf certificate")
	}

	var verdicts []ct.VerifiedSCT

	embedded, err := extract.EmbeddedSCTList(in.LeafDER)
	switch {
	case errors.Is(err, extract.ErrNotFound):
		// nothing embedded
	case err != nil:
		v.log.Warn("broken embedded SCT extension", "err", err)
	case len(in.IssuerDER) == 0:
		// Embedded SCTs are signed over the precertificate entry, which
		// cannot be reconstructed without the issuer.
		v.log.Warn("embedded SCTs but no issuer certificate")
	default:
		entry, err := extract.PrecertEntry(in.LeafDER, in.IssuerDER)
		if err != nil {
			v.log.Warn("cannot reconstruct precertificate entry", "err", err)
			break
		}
		verdicts = v.verifyList(verdicts, embedded, entry, ct.OriginEmbedded)
	}

	if len(in.OCSPResponse) != 0 && len(in.IssuerDER) != 0 {
		stapled, err := extract.SCTListFromOCSP(in.OCSPResponse, in.LeafDER, in.IssuerDER)
		switch {
		case errors.Is(err, extract.ErrNotFound):
		case err != nil:
			v.log.Warn("broken stapled OCSP response", "err", err)
		default:
			entry := extract.X509Entry(in.LeafDER)
			verdicts = v.verifyList(verdicts, stapled, entry, ct.OriginOCSPStaple)
		}
	}

	if len(in.TLSSCTList) != 0 {
		entry := extract.X509Entry(in.LeafDER)
		verdicts = v.verifyList(verdicts, in.TLSSCTList, entry, ct.OriginTLSExtension)
	}

	if v.sink != nil {
		if err := v.sink.Record(in.LeafDER, verdicts); err != nil {
			return nil, fmt.Errorf("recording verdicts: %w", err)
		}
	}
	return verdicts, nil
}

// verifyList appends a verdict for every SCT that decodes from the given
// list. A framing error discards the list as a whole.
func (v *Verifier) verifyList(verdicts []ct.VerifiedSCT, raw []byte,
	entry *ct.SignedEntry, origin ct.SCTOrigin) []ct.VerifiedSCT {

	var list ct.SCTList
	if err := list.UnmarshalBinary(raw); err != nil {
		v.log.Warn("discarding SCT list", "origin", origin, "err", err)
		return verdicts
	}
	for _, item := range list {
		var sct ct.SignedCertificateTimestamp
		if err := sct.UnmarshalBinary(item); err != nil {
			v.log.Warn("skipping undecodable SCT", "origin", origin, "err", err)
			continue
		}
		sct.Origin = origin
		status := v.verifyOne(entry, &sct)
		if v.observer != nil {
			v.observer.ObserveVerdict(origin, status)
		}
		verdicts = append(verdicts, ct.VerifiedSCT{SCT: sct, Status: status})
	}
	return verdicts
}

// verifyOne judges a single decoded SCT against the known logs and the
// clock. It fills in the SCT's log description when the log is known.
func (v *Verifier) verifyOne(entry *ct.SignedEntry, sct *ct.SignedCertificateTimestamp) ct.VerifyStatus {
	log, ok := v.registry.Lookup(sct.LogID)
	if !ok {
		return ct.StatusLogUnknown
	}
	sct.LogDescription = log.Description
	if !log.VerifySCT(entry, sct) {
		return ct.StatusInvalidSignature
	}
	if sct.Time().After(v.now()) {
		return ct.StatusInvalidTimestamp
	}
	return ct.StatusOK
}
