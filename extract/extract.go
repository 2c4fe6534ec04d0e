// Package extract recovers Certificate Transparency evidence from
// DER-encoded certificates and OCSP responses, and reconstructs the exact
// entries logs sign.
package extract

import (
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/certevidence/ct"
)

// ErrNotFound is returned when the requested evidence is simply absent:
// no SCT extension in the certificate, or no matching OCSP response.
// Any other error means the input was present but malformed.
var ErrNotFound = errors.New("not found")

var (
	// X.509v3 extension carrying an embedded SCT list.
	oidEmbeddedSCTList = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 2}

	// Critical poison extension marking a precertificate.
	oidPrecertPoison = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 3}

	// OCSP SingleResponse extension carrying an SCT list.
	oidOCSPSCTList = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 5}
)

// X509Entry returns the signed entry for a final certificate: the leaf
// DER as-is.
func X509Entry(leafDER []byte) *ct.SignedEntry {
	return &ct.SignedEntry{
		Type:            ct.X509EntryType,
		LeafCertificate: leafDER,
	}
}

// EmbeddedSCTList returns the raw SCT list bytes carried in the leaf's
// embedded-SCT extension. Returns ErrNotFound if the certificate has no
// such extension.
func EmbeddedSCTList(leafDER []byte) ([]byte, error) {
	tbs, err := tbsCertificate(leafDER)
	if err != nil {
		return nil, err
	}
	_, extensions, err := splitTBS(tbs)
	if err != nil {
		return nil, err
	}
	for !extensions.Empty() {
		var elem cryptobyte.String
		if !extensions.ReadASN1(&elem, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed extension")
		}
		var oid asn1.ObjectIdentifier
		if !elem.ReadASN1ObjectIdentifier(&oid) {
			return nil, errors.New("malformed extension oid")
		}
		if oid.Equal(oidEmbeddedSCTList) {
			return sctListFromExtension(elem)
		}
	}
	return nil, ErrNotFound
}

// PrecertEntry reconstructs the precertificate entry the logs signed for
// the given leaf: its TBSCertificate with the embedded-SCT extension
// excised, plus the SHA-256 hash of the issuer's SubjectPublicKeyInfo.
//
// The extension is removed by splicing the surrounding bytes back
// together; only the three enclosing length headers are rewritten, every
// other element is carried over verbatim. Returns ErrNotFound if the leaf
// has no embedded-SCT extension.
func PrecertEntry(leafDER, issuerDER []byte) (*ct.SignedEntry, error) {
	return precertEntry(leafDER, issuerDER, oidEmbeddedSCTList)
}

// PrecertEntryFromPrecert builds the precertificate entry from an actual
// precertificate, removing its poison extension instead of an embedded
// SCT list. The result matches what PrecertEntry derives from the final
// certificate when the issuer followed RFC 6962.
func PrecertEntryFromPrecert(precertDER, issuerDER []byte) (*ct.SignedEntry, error) {
	return precertEntry(precertDER, issuerDER, oidPrecertPoison)
}

func precertEntry(leafDER, issuerDER []byte, excise asn1.ObjectIdentifier) (*ct.SignedEntry, error) {
	issuerSPKI, err := subjectPublicKeyInfo(issuerDER)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	tbs, err := tbsCertificate(leafDER)
	if err != nil {
		return nil, err
	}
	before, extensions, err := splitTBS(tbs)
	if err != nil {
		return nil, err
	}

	var kept []byte
	found := false
	for !extensions.Empty() {
		var elem cryptobyte.String
		if !extensions.ReadASN1Element(&elem, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed extension")
		}
		inner := elem
		var body cryptobyte.String
		if !inner.ReadASN1(&body, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed extension")
		}
		var oid asn1.ObjectIdentifier
		if !body.ReadASN1ObjectIdentifier(&oid) {
			return nil, errors.New("malformed extension oid")
		}
		if oid.Equal(excise) {
			found = true
			continue
		}
		kept = append(kept, elem...)
	}
	if !found {
		return nil, ErrNotFound
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(before)
		b.AddASN1(cbasn1.Tag(3).Constructed().ContextSpecific(),
			func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddBytes(kept)
				})
			})
	})
	doctored, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	entry := &ct.SignedEntry{
		Type:           ct.PrecertEntryType,
		TBSCertificate: doctored,
	}
	entry.IssuerKeyHash = sha256.Sum256(issuerSPKI)
	return entry, nil
}

// tbsCertificate returns the contents of the leaf's TBSCertificate
// SEQUENCE.
func tbsCertificate(der []byte) (cryptobyte.String, error) {
	var (
		cert, tbs cryptobyte.String
	)
	s := cryptobyte.String(der)
	if !s.ReadASN1(&cert, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed certificate")
	}
	if !s.Empty() {
		return nil, errors.New("trailing bytes after certificate")
	}
	if !cert.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed tbsCertificate")
	}
	return tbs, nil
}

// splitTBS walks the contents of a TBSCertificate up to its extensions.
// It returns the raw bytes of everything before the [3] extensions
// wrapper, and the contents of the extensions SEQUENCE. Returns
// ErrNotFound if the certificate has no extensions.
func splitTBS(tbs cryptobyte.String) (before []byte, extensions cryptobyte.String, err error) {
	full := tbs

	// version is [0] EXPLICIT and optional.
	if !tbs.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, nil, errors.New("malformed version")
	}
	if !tbs.SkipASN1(cbasn1.INTEGER) {
		return nil, nil, errors.New("malformed serialNumber")
	}
	for _, field := range []string{"signature", "issuer", "validity", "subject", "subjectPublicKeyInfo"} {
		if !tbs.SkipASN1(cbasn1.SEQUENCE) {
			return nil, nil, fmt.Errorf("malformed %s", field)
		}
	}
	// issuerUniqueID and subjectUniqueID are [1] and [2] IMPLICIT, optional.
	if !tbs.SkipOptionalASN1(cbasn1.Tag(1).ContextSpecific()) ||
		!tbs.SkipOptionalASN1(cbasn1.Tag(2).ContextSpecific()) {
		return nil, nil, errors.New("malformed uniqueID")
	}

	if tbs.Empty() {
		return nil, nil, ErrNotFound
	}
	before = full[:len(full)-len(tbs)]

	var wrapper cryptobyte.String
	if !tbs.ReadASN1(&wrapper, cbasn1.Tag(3).Constructed().ContextSpecific()) {
		return nil, nil, errors.New("malformed extensions wrapper")
	}
	if !tbs.Empty() {
		return nil, nil, errors.New("trailing bytes after extensions")
	}
	if !wrapper.ReadASN1(&extensions, cbasn1.SEQUENCE) {
		return nil, nil, errors.New("malformed extensions")
	}
	if !wrapper.Empty() {
		return nil, nil, errors.New("trailing bytes in extensions wrapper")
	}
	return before, extensions, nil
}

// subjectPublicKeyInfo returns the full SubjectPublicKeyInfo element of
// the certificate, header included.
func subjectPublicKeyInfo(der []byte) ([]byte, error) {
	tbs, err := tbsCertificate(der)
	if err != nil {
		return nil, err
	}
	if !tbs.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("malformed version")
	}
	if !tbs.SkipASN1(cbasn1.INTEGER) {
		return nil, errors.New("malformed serialNumber")
	}
	for _, field := range []string{"signature", "issuer", "validity", "subject"} {
		if !tbs.SkipASN1(cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("malformed %s", field)
		}
	}
	var spki cryptobyte.String
	if !tbs.ReadASN1Element(&spki, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed subjectPublicKeyInfo")
	}
	return spki, nil
}

// publicKeyBits returns the bare public key: the content of the
// SubjectPublicKeyInfo's BIT STRING, without the unused-bits octet.
func publicKeyBits(der []byte) ([]byte, error) {
	spkiElem, err := subjectPublicKeyInfo(der)
	if err != nil {
		return nil, err
	}
	var spki cryptobyte.String
	outer := cryptobyte.String(spkiElem)
	if !outer.ReadASN1(&spki, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed subjectPublicKeyInfo")
	}
	if !spki.SkipASN1(cbasn1.SEQUENCE) {
		return nil, errors.New("malformed key algorithm")
	}
	var bits asn1.BitString
	if !spki.ReadASN1BitString(&bits) {
		return nil, errors.New("malformed public key bits")
	}
	return bits.RightAlign(), nil
}

// sctListFromExtension unwraps the value of an SCT-list extension: the
// remainder of an Extension SEQUENCE after its OID. The value is an OCTET
// STRING wrapping a second OCTET STRING holding the list bytes.
func sctListFromExtension(ext cryptobyte.String) ([]byte, error) {
	var critical bool
	if !ext.ReadOptionalASN1Boolean(&critical, cbasn1.BOOLEAN, false) {
		return nil, errors.New("malformed critical flag")
	}
	var extnValue cryptobyte.String
	if !ext.ReadASN1(&extnValue, cbasn1.OCTET_STRING) {
		return nil, errors.New("malformed extension value")
	}
	if !ext.Empty() {
		return nil, errors.New("trailing bytes in extension")
	}
	var inner cryptobyte.String
	if !extnValue.ReadASN1(&inner, cbasn1.OCTET_STRING) {
		return nil, errors.New("malformed inner octet string")
	}
	if !extnValue.Empty() {
		return nil, errors.New("trailing bytes after inner octet string")
	}
	out := make([]byte, len(inner))
	copy(out, inner)
	return out, nil
}
