// Package loglist reads JSON log lists, as published by CT log list
// maintainers, into a registry of known logs.
package loglist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/certevidence/ct"
)

// Log lists run to a few hundred kilobytes; anything bigger is junk.
const maxListSize = 10 << 20

// Log describes one log in a list. Key is the DER-encoded
// SubjectPublicKeyInfo, base64 in the JSON.
type Log struct {
	Description string `json:"description"`
	LogID       []byte `json:"log_id"`
	Key         []byte `json:"key"`
	URL         string `json:"url"`
}

// Operator groups the logs run by one organization.
type Operator struct {
	Name string `json:"name"`
	Logs []Log  `json:"logs"`
}

// List is a parsed log list.
type List struct {
	Version   string     `json:"version"`
	Operators []Operator `json:"operators"`
}

// Parse decodes a JSON log list.
func Parse(data []byte) (*List, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var list List
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("parsing log list: %w", err)
	}
	return &list, nil
}

// Load reads and parses a log list from a file.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Fetch downloads and parses a log list. A nil client uses
// http.DefaultClient.
func Fetch(ctx context.Context, client *http.Client, url string) (*List, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching log list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching log list: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return nil, fmt.Errorf("reading log list: %w", err)
	}
	return Parse(data)
}

// Registry builds a registry from every log in the list. A log whose key
// does not parse, or whose stated log_id does not match its key, is an
// error: a list that misidentifies logs should not be trusted at all.
func (l *List) Registry() (*ct.Registry, error) {
	var logs []ct.KnownLog
	for _, op := range l.Operators {
		for _, entry := range op.Logs {
			log, err := ct.NewKnownLog(entry.Key, entry.Description)
			if err != nil {
				return nil, fmt.Errorf("log %q: %w", entry.Description, err)
			}
			if len(entry.LogID) != 0 && !bytes.Equal(entry.LogID, log.ID[:]) {
				return nil, fmt.Errorf("log %q: log_id does not match key", entry.Description)
			}
			logs = append(logs, log)
		}
	}
	return ct.NewRegistry(logs...), nil
}
