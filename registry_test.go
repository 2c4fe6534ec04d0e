package ct

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"testing"
)

// testCertPEM is a leaf certificate submitted to the RFC 6962 test log;
// testCertProofHex is the log's SCT over it.
const testCertPEM = "-----BEGIN CERTIFICATE-----\n" +
	"MIICyjCCAjOgAwIBAgIBBjANBgkqhkiG9w0BAQUFADBVMQswCQYDVQQGEwJHQjEk\n" +
	"MCIGA1UEChMbQ2VydGlmaWNhdGUgVHJhbnNwYXJlbmN5IENBMQ4wDAYDVQQIEwVX\n" +
	"YWxlczEQMA4GA1UEBxMHRXJ3IFdlbjAeFw0xMjA2MDEwMDAwMDBaFw0yMjA2MDEw\n" +
	"MDAwMDBaMFIxCzAJBgNVBAYTAkdCMSEwHwYDVQQKExhDZXJ0aWZpY2F0ZSBUcmFu\n" +
	"c3BhcmVuY3kxDjAMBgNVBAgTBVdhbGVzMRAwDgYDVQQHEwdFcncgV2VuMIGfMA0G\n" +
	"CSqGSIb3DQEBAQUAA4GNADCBiQKBgQCx+jeTYRH4eS2iCBw/5BklAIUx3H8sZXvZ\n" +
	"4d5HBBYLTJ8Z1UraRHBATBxRNBuPH3U43d0o2aykg2n8VkbdzHYX+BaKrltB1DMx\n" +
	"/KLa38gE1XIIlJBh+e75AspHzojGROAA8G7uzKvcndL2iiLMsJ3Hbg28c1J3ZbGj\n" +
	"eoxnYlPcwQIDAQABo4GsMIGpMB0GA1UdDgQWBBRqDZgqO2LES20u9Om7egGqnLeY\n" +
	"4jB9BgNVHSMEdjB0gBRfnYgNyHPmVNT4DdjmsMEktEfDVaFZpFcwVTELMAkGA1UE\n" +
	"BhMCR0IxJDAiBgNVBAoTG0NlcnRpZmljYXRlIFRyYW5zcGFyZW5jeSBDQTEOMAwG\n" +
	"A1UECBMFV2FsZXMxEDAOBgNVBAcTB0VydyBXZW6CAQAwCQYDVR0TBAIwADANBgkq\n" +
	"hkiG9w0BAQUFAAOBgQAXHNhKrEFKmgMPIqrI9oiwgbJwm4SLTlURQGzXB/7QKFl6\n" +
	"n678Lu4peNYzqqwU7TI1GX2ofg9xuIdfGsnniygXSd3t0Afj7PUGRfjL9mclbNah\n" +
	"ZHteEyA7uFgt59Zpb2VtHGC5X0Vrf88zhXGQjxxpcn0kxPzNJJKVeVgU0drA5g==\n" +
	"-----END CERTIFICATE-----\n"

func testLog(t *testing.T) KnownLog {
	t.Helper()
	block, _ := pem.Decode([]byte(testLogKeyPEM))
	if block == nil {
		t.Fatal("bad key PEM")
	}
	log, err := NewKnownLog(block.Bytes, "test log")
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func pemDER(t *testing.T, pemData string) []byte {
	t.Helper()
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		t.Fatal("bad PEM")
	}
	return block.Bytes
}

func TestVerifySCTKnownVector(t *testing.T) {
	log := testLog(t)
	entry := &SignedEntry{
		Type:            X509EntryType,
		LeafCertificate: pemDER(t, testCertPEM),
	}

	var sct SignedCertificateTimestamp
	if err := sct.UnmarshalBinary(dh(t, testCertProofHex)); err != nil {
		t.Fatal(err)
	}
	if sct.LogID != log.ID {
		t.Fatalf("log id mismatch: %x vs %x", sct.LogID, log.ID)
	}
	if !log.VerifySCT(entry, &sct) {
		t.Fatal("known good SCT did not verify")
	}

	bad := sct
	bad.Timestamp++
	if log.VerifySCT(entry, &bad) {
		t.Fatal("tampered timestamp verified")
	}

	bad = sct
	bad.Signature.HashAlgorithm = HashSHA384
	if log.VerifySCT(entry, &bad) {
		t.Fatal("wrong hash algorithm verified")
	}

	other := &SignedEntry{
		Type:            X509EntryType,
		LeafCertificate: []byte{1, 2, 3},
	}
	if log.VerifySCT(other, &sct) {
		t.Fatal("SCT verified over wrong entry")
	}
}

func TestVerifySTH(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), testSeed("sth-log-key"))
	if err != nil {
		t.Fatal(err)
	}
	key, err := NewPublicKey(priv.Public())
	if err != nil {
		t.Fatal(err)
	}
	log := KnownLog{ID: KeyID(key), Description: "sth log", Key: key}

	sth := SignedTreeHead{
		Version:   V1,
		Timestamp: 1365181456089,
		TreeSize:  42,
	}
	for i := range sth.RootHash {
		sth.RootHash[i] = byte(i)
	}
	input, err := TreeHeadSignatureInput(&sth)
	if err != nil {
		t.Fatal(err)
	}
	hashed := sha256.Sum256(input)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, hashed[:])
	if err != nil {
		t.Fatal(err)
	}
	sth.Signature = DigitallySigned{
		HashAlgorithm:      HashSHA256,
		SignatureAlgorithm: SigECDSA,
		Signature:          sig,
	}

	if !log.VerifySTH(&sth) {
		t.Fatal("valid STH did not verify")
	}
	sth.TreeSize++
	if log.VerifySTH(&sth) {
		t.Fatal("tampered STH verified")
	}
}

func TestRegistry(t *testing.T) {
	log := testLog(t)
	reg := NewRegistry(log)
	if reg.Len() != 1 {
		t.Fatalf("len: got %d", reg.Len())
	}

	got, ok := reg.Lookup(log.ID)
	if !ok {
		t.Fatal("known log not found")
	}
	if got.Description != "test log" {
		t.Fatalf("description: got %q", got.Description)
	}

	var unknown LogID
	if _, ok := reg.Lookup(unknown); ok {
		t.Fatal("unknown log found")
	}
}
