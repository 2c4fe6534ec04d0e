package loglist

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/certevidence/ct"
)

// The RFC 6962 test log.
const (
	testLogKeyB64 = "MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEmXg8sUUzwBYaWrRb+V0IopzQ6o3U" +
		"yEJ04r5ZrRXGdpYM8K+hB0pXrGRLI0eeWz+3skXrS0IO83AhA3GpRL6s6w=="
	testLogIDHex = "df1c2ec11500945247a96168325ddc5c7959e8f7c6d388fc002e0bbd3f74d764"
)

func sampleJSON(t *testing.T, logID string) []byte {
	t.Helper()
	id, err := hex.DecodeString(logID)
	if err != nil {
		t.Fatal(err)
	}
	return []byte(fmt.Sprintf(`{
		"version": "1.2",
		"operators": [
			{
				"name": "Test Operator",
				"logs": [
					{
						"description": "test log",
						"log_id": %q,
						"key": %q,
						"url": "https://log.example/"
					}
				]
			}
		]
	}`, base64.StdEncoding.EncodeToString(id), testLogKeyB64))
}

func TestParseAndRegistry(t *testing.T) {
	list, err := Parse(sampleJSON(t, testLogIDHex))
	if err != nil {
		t.Fatal(err)
	}
	if list.Version != "1.2" || len(list.Operators) != 1 {
		t.Fatalf("parsed %+v", list)
	}

	reg, err := list.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d logs", reg.Len())
	}
	var id ct.LogID
	copy(id[:], mustHex(t, testLogIDHex))
	log, ok := reg.Lookup(id)
	if !ok {
		t.Fatal("test log not in registry")
	}
	if log.Description != "test log" {
		t.Fatalf("description: got %q", log.Description)
	}
}

func TestRegistryRejectsMismatchedID(t *testing.T) {
	list, err := Parse(sampleJSON(t,
		"0000000000000000000000000000000000000000000000000000000000000000"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := list.Registry(); err == nil {
		t.Fatal("mismatched log_id accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loglist.json")
	if err := os.WriteFile(path, sampleJSON(t, testLogIDHex), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Operators) != 1 {
		t.Fatalf("parsed %+v", list)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("loaded missing file")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write(sampleJSON(t, testLogIDHex))
		}))
	defer srv.Close()

	list, err := Fetch(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Operators) != 1 {
		t.Fatalf("parsed %+v", list)
	}

	srv404 := httptest.NewServer(http.NotFoundHandler())
	defer srv404.Close()
	if _, err := Fetch(context.Background(), srv404.Client(), srv404.URL); err == nil {
		t.Fatal("fetched a 404")
	}
}

func mustHex(t *testing.T, h string) []byte {
	t.Helper()
	buf, err := hex.DecodeString(h)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}
