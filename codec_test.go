package ct

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// testCertProofHex is a TLS-encoded SCT issued by the RFC 6962 test log
// over the leaf in registry_test.go.
const testCertProofHex = "00df1c2ec11500945247a96168325ddc5c7959e8f7c6d388fc002e0bbd3f74d7" +
	"640000013ddb27ded900000403004730450220606e10ae5c2d5a1b0aed49dc49" +
	"37f48de71a4e9784e9c208dfbfe9ef536cf7f2022100beb29c72d7d06d61d06b" +
	"db38a069469aa86fe12e18bb7cc45689a2c0187ef5a5"

func dh(t *testing.T, h string) []byte {
	t.Helper()
	buf, err := hex.DecodeString(h)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestSCTDecodeKnownVector(t *testing.T) {
	proof := dh(t, testCertProofHex)

	var sct SignedCertificateTimestamp
	if err := sct.UnmarshalBinary(proof); err != nil {
		t.Fatal(err)
	}
	if sct.Version != V1 {
		t.Fatalf("version: got %d", sct.Version)
	}
	wantLogID := dh(t, "df1c2ec11500945247a96168325ddc5c7959e8f7c6d388fc002e0bbd3f74d764")
	if !bytes.Equal(sct.LogID[:], wantLogID) {
		t.Fatalf("log id: got %x", sct.LogID)
	}
	if sct.Timestamp != 1365181456089 {
		t.Fatalf("timestamp: got %d", sct.Timestamp)
	}
	if len(sct.Extensions) != 0 {
		t.Fatalf("extensions: got %x", sct.Extensions)
	}
	if sct.Signature.HashAlgorithm != HashSHA256 ||
		sct.Signature.SignatureAlgorithm != SigECDSA {
		t.Fatalf("algorithms: got %d/%d", sct.Signature.HashAlgorithm,
			sct.Signature.SignatureAlgorithm)
	}
	if len(sct.Signature.Signature) != 0x47 {
		t.Fatalf("signature length: got %d", len(sct.Signature.Signature))
	}

	buf, err := sct.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, proof) {
		t.Fatalf("re-encode mismatch:\ngot  %x\nwant %x", buf, proof)
	}
}

func TestSCTDecodeStrict(t *testing.T) {
	proof := dh(t, testCertProofHex)

	var sct SignedCertificateTimestamp
	for i := 0; i < len(proof); i++ {
		if err := sct.UnmarshalBinary(proof[:i]); err == nil {
			t.Fatalf("prefix of %d bytes decoded", i)
		}
	}
	if err := sct.UnmarshalBinary(append(proof[:len(proof):len(proof)], 0)); !errors.Is(err, ErrExtraBytes) {
		t.Fatalf("expected ErrExtraBytes, got %v", err)
	}

	v2 := append([]byte(nil), proof...)
	v2[0] = 1
	if err := sct.UnmarshalBinary(v2); err == nil {
		t.Fatal("unknown version decoded")
	}
}

func TestDigitallySigned(t *testing.T) {
	ds := DigitallySigned{
		HashAlgorithm:      HashSHA256,
		SignatureAlgorithm: SigECDSA,
		Signature:          []byte{1, 2, 3},
	}
	buf, err := ds.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{4, 3, 0, 3, 1, 2, 3}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got %x, want %x", buf, want)
	}

	var back DigitallySigned
	if err := back.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if back.HashAlgorithm != ds.HashAlgorithm ||
		back.SignatureAlgorithm != ds.SignatureAlgorithm ||
		!bytes.Equal(back.Signature, ds.Signature) {
		t.Fatalf("round trip mismatch: %+v", back)
	}

	if err := back.UnmarshalBinary([]byte{7, 3, 0, 0}); err == nil {
		t.Fatal("unknown hash algorithm decoded")
	}
	if err := back.UnmarshalBinary([]byte{4, 4, 0, 0}); err == nil {
		t.Fatal("unknown signature algorithm decoded")
	}
	if err := back.UnmarshalBinary([]byte{4, 3, 0}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestSignedEntry(t *testing.T) {
	x509Entry := SignedEntry{
		Type:            X509EntryType,
		LeafCertificate: []byte{0xaa, 0xbb},
	}
	buf, err := x509Entry.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 0, 2, 0xaa, 0xbb}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got %x, want %x", buf, want)
	}

	precert := SignedEntry{
		Type:           PrecertEntryType,
		TBSCertificate: []byte{0x30, 0x00},
	}
	for i := range precert.IssuerKeyHash {
		precert.IssuerKeyHash[i] = byte(i)
	}
	buf, err = precert.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var back SignedEntry
	if err := back.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if back.Type != PrecertEntryType ||
		back.IssuerKeyHash != precert.IssuerKeyHash ||
		!bytes.Equal(back.TBSCertificate, precert.TBSCertificate) {
		t.Fatalf("round trip mismatch: %+v", back)
	}

	bogus := SignedEntry{Type: 2}
	if _, err := bogus.MarshalBinary(); err == nil {
		t.Fatal("unknown entry type encoded")
	}
	if err := back.UnmarshalBinary([]byte{0, 2}); err == nil {
		t.Fatal("unknown entry type decoded")
	}
}

func TestMerkleTreeLeafRoundTrip(t *testing.T) {
	leaf := MerkleTreeLeaf{
		Version:   V1,
		LeafType:  TimestampedEntryType,
		Timestamp: 1365181456089,
		Entry: SignedEntry{
			Type:            X509EntryType,
			LeafCertificate: []byte{1, 2, 3, 4},
		},
		Extensions: []byte{},
	}
	buf, err := leaf.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var back MerkleTreeLeaf
	if err := back.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if back.Timestamp != leaf.Timestamp ||
		!bytes.Equal(back.Entry.LeafCertificate, leaf.Entry.LeafCertificate) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if err := back.UnmarshalBinary(append(buf, 0)); !errors.Is(err, ErrExtraBytes) {
		t.Fatalf("expected ErrExtraBytes, got %v", err)
	}
}

func TestMerkleTreeLeafFor(t *testing.T) {
	var sct SignedCertificateTimestamp
	if err := sct.UnmarshalBinary(dh(t, testCertProofHex)); err != nil {
		t.Fatal(err)
	}
	entry := SignedEntry{Type: X509EntryType, LeafCertificate: []byte{1, 2, 3}}
	leaf := MerkleTreeLeafFor(entry, &sct)
	if leaf.Timestamp != sct.Timestamp || leaf.LeafType != TimestampedEntryType {
		t.Fatalf("got %+v", leaf)
	}
	if _, err := leaf.MarshalBinary(); err != nil {
		t.Fatal(err)
	}
}

func TestSignatureInput(t *testing.T) {
	entry := SignedEntry{
		Type:            X509EntryType,
		LeafCertificate: []byte{0xaa},
	}
	serialized, err := entry.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := SignatureInput(0x0102030405060708, serialized, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0,                      // v1
		0,                      // certificate_timestamp
		1, 2, 3, 4, 5, 6, 7, 8, // timestamp
		0, 0, // x509_entry
		0, 0, 1, 0xaa, // leaf certificate
		0, 0, // extensions
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestTreeHeadSignatureInput(t *testing.T) {
	sth := SignedTreeHead{
		Version:   V1,
		Timestamp: 0x0102030405060708,
		TreeSize:  42,
	}
	for i := range sth.RootHash {
		sth.RootHash[i] = byte(i)
	}
	got, err := TreeHeadSignatureInput(&sth)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{
		0,                      // v1
		1,                      // tree_hash
		1, 2, 3, 4, 5, 6, 7, 8, // timestamp
		0, 0, 0, 0, 0, 0, 0, 42, // tree size
	}, sth.RootHash[:]...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestSCTList(t *testing.T) {
	list := SCTList{{1, 2, 3}, {4, 5}}
	buf, err := list.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 9, 0, 3, 1, 2, 3, 0, 2, 4, 5}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got %x, want %x", buf, want)
	}

	var back SCTList
	if err := back.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || !bytes.Equal(back[0], list[0]) || !bytes.Equal(back[1], list[1]) {
		t.Fatalf("round trip mismatch: %x", back)
	}

	for _, tc := range []struct {
		name string
		in   []byte
	}{
		{"empty-input", []byte{}},
		{"empty-list", []byte{0, 0}},
		{"empty-item", []byte{0, 2, 0, 0}},
		{"item-overrun", []byte{0, 4, 0, 5, 1, 2}},
		{"short-outer", []byte{0, 9, 0, 3, 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var l SCTList
			if err := l.UnmarshalBinary(tc.in); err == nil {
				t.Fatalf("decoded %x", tc.in)
			}
		})
	}

	t.Run("trailing", func(t *testing.T) {
		var l SCTList
		if err := l.UnmarshalBinary(append(buf, 0)); !errors.Is(err, ErrExtraBytes) {
			t.Fatalf("expected ErrExtraBytes, got %v", err)
		}
	})

	if _, err := SCTList(nil).MarshalBinary(); err == nil {
		t.Fatal("empty list encoded")
	}
	if _, err := (SCTList{{}}).MarshalBinary(); err == nil {
		t.Fatal("empty item encoded")
	}
}
