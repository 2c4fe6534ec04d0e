package extract

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidBasicOCSPResponse = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
	oidHashSHA1          = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidHashSHA256        = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

// SCTListFromOCSP returns the raw SCT list carried in the OCSP response's
// SingleResponse for the given leaf. The matching SingleResponse is the
// one whose CertID names the leaf's serial number and whose issuer key
// hash matches the issuer's public key under the CertID's own hash
// algorithm (SHA-1 or SHA-256).
//
// Returns ErrNotFound when the response is not successful, no
// SingleResponse matches, or the matching one carries no SCT extension.
func SCTListFromOCSP(ocspDER, leafDER, issuerDER []byte) ([]byte, error) {
	serial, err := serialNumber(leafDER)
	if err != nil {
		return nil, fmt.Errorf("leaf: %w", err)
	}
	keyBits, err := publicKeyBits(issuerDER)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	keySHA1 := sha1.Sum(keyBits)
	keySHA256 := sha256.Sum256(keyBits)

	responses, err := singleResponses(ocspDER)
	if err != nil {
		return nil, err
	}

	for !responses.Empty() {
		var single cryptobyte.String
		if !responses.ReadASN1(&single, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed SingleResponse")
		}
		match, err := certIDMatches(&single, serial, keySHA1[:], keySHA256[:])
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		return sctListFromSingle(single)
	}
	return nil, ErrNotFound
}

// singleResponses unwraps an OCSPResponse down to the contents of the
// ResponseData responses SEQUENCE.
func singleResponses(ocspDER []byte) (cryptobyte.String, error) {
	var resp cryptobyte.String
	s := cryptobyte.String(ocspDER)
	if !s.ReadASN1(&resp, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed OCSPResponse")
	}

	var status int64
	if !resp.ReadASN1Int64WithTag(&status, cbasn1.ENUM) {
		return nil, errors.New("malformed responseStatus")
	}
	if status != 0 { // successful
		return nil, ErrNotFound
	}

	var wrapper, respBytes cryptobyte.String
	if !resp.ReadASN1(&wrapper, cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, ErrNotFound
	}
	if !wrapper.ReadASN1(&respBytes, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed ResponseBytes")
	}
	var respType asn1.ObjectIdentifier
	if !respBytes.ReadASN1ObjectIdentifier(&respType) {
		return nil, errors.New("malformed responseType")
	}
	if !respType.Equal(oidBasicOCSPResponse) {
		return nil, ErrNotFound
	}
	var der cryptobyte.String
	if !respBytes.ReadASN1(&der, cbasn1.OCTET_STRING) {
		return nil, errors.New("malformed response octets")
	}

	var basic, tbs cryptobyte.String
	if !der.ReadASN1(&basic, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed BasicOCSPResponse")
	}
	if !basic.ReadASN1(&tbs, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed ResponseData")
	}

	// version is [0] EXPLICIT and optional; responderID is a CHOICE of
	// [1] byName or [2] byKey.
	if !tbs.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("malformed version")
	}
	var responderID cryptobyte.String
	var tag cbasn1.Tag
	if !tbs.ReadAnyASN1(&responderID, &tag) {
		return nil, errors.New("malformed responderID")
	}
	if !tbs.SkipASN1(cbasn1.GeneralizedTime) {
		return nil, errors.New("malformed producedAt")
	}
	var responses cryptobyte.String
	if !tbs.ReadASN1(&responses, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed responses")
	}
	return responses, nil
}

// certIDMatches consumes the CertID of a SingleResponse and reports
// whether it names the given serial with an issuer key hash matching the
// precomputed digest for its hash algorithm.
func certIDMatches(single *cryptobyte.String, serial *big.Int, keySHA1, keySHA256 []byte) (bool, error) {
	var certID, alg cryptobyte.String
	if !single.ReadASN1(&certID, cbasn1.SEQUENCE) {
		return false, errors.New("malformed CertID")
	}
	if !certID.ReadASN1(&alg, cbasn1.SEQUENCE) {
		return false, errors.New("malformed hashAlgorithm")
	}
	var hashOID asn1.ObjectIdentifier
	if !alg.ReadASN1ObjectIdentifier(&hashOID) {
		return false, errors.New("malformed hashAlgorithm oid")
	}
	if !certID.SkipASN1(cbasn1.OCTET_STRING) {
		return false, errors.New("malformed issuerNameHash")
	}
	var keyHash cryptobyte.String
	if !certID.ReadASN1(&keyHash, cbasn1.OCTET_STRING) {
		return false, errors.New("malformed issuerKeyHash")
	}
	respSerial := new(big.Int)
	if !certID.ReadASN1Integer(respSerial) {
		return false, errors.New("malformed serialNumber")
	}

	if respSerial.Cmp(serial) != 0 {
		return false, nil
	}
	switch {
	case hashOID.Equal(oidHashSHA1):
		return string(keyHash) == string(keySHA1), nil
	case hashOID.Equal(oidHashSHA256):
		return string(keyHash) == string(keySHA256), nil
	default:
		return false, nil
	}
}

// sctListFromSingle walks the remainder of a matched SingleResponse,
// after its CertID, and extracts the SCT list from its singleExtensions.
func sctListFromSingle(single cryptobyte.String) ([]byte, error) {
	// certStatus is a CHOICE of [0] good, [1] revoked, [2] unknown.
	var status cryptobyte.String
	var tag cbasn1.Tag
	if !single.ReadAnyASN1(&status, &tag) {
		return nil, errors.New("malformed certStatus")
	}
	if !single.SkipASN1(cbasn1.GeneralizedTime) {
		return nil, errors.New("malformed thisUpdate")
	}
	if !single.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("malformed nextUpdate")
	}

	var wrapper cryptobyte.String
	var present bool
	if !single.ReadOptionalASN1(&wrapper, &present,
		cbasn1.Tag(1).Constructed().ContextSpecific()) {
		return nil, errors.New("malformed singleExtensions")
	}
	if !present {
		return nil, ErrNotFound
	}
	var extensions cryptobyte.String
	if !wrapper.ReadASN1(&extensions, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed singleExtensions")
	}
	for !extensions.Empty() {
		var ext cryptobyte.String
		if !extensions.ReadASN1(&ext, cbasn1.SEQUENCE) {
			return nil, errors.New("malformed extension")
		}
		var oid asn1.ObjectIdentifier
		if !ext.ReadASN1ObjectIdentifier(&oid) {
			return nil, errors.New("malformed extension oid")
		}
		if oid.Equal(oidOCSPSCTList) {
			return sctListFromExtension(ext)
		}
	}
	return nil, ErrNotFound
}

// serialNumber parses the serial number out of a certificate's
// TBSCertificate.
func serialNumber(leafDER []byte) (*big.Int, error) {
	tbs, err := tbsCertificate(leafDER)
	if err != nil {
		return nil, err
	}
	if !tbs.SkipOptionalASN1(cbasn1.Tag(0).Constructed().ContextSpecific()) {
		return nil, errors.New("malformed version")
	}
	serial := new(big.Int)
	if !tbs.ReadASN1Integer(serial) {
		return nil, errors.New("malformed serialNumber")
	}
	return serial, nil
}
