// Package http serves recorded SCT verdicts over HTTP, for operators
// auditing what their fleet has seen.
package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certevidence/ct"
	"github.com/certevidence/ct/audit"
)

type Server struct {
	server *http.Server
	store  *audit.Store
}

func NewServer(store *audit.Store, listenAddr string, gatherer prometheus.Gatherer) *Server {
	s := &Server{store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/verdicts/", s.handleVerdicts)
	mux.HandleFunc("/summary", s.handleSummary)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Handler:      mux,
		Addr:         listenAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// verdictJSON is the wire shape of one recorded verdict.
type verdictJSON struct {
	LogID     string `json:"log_id"`
	Log       string `json:"log,omitempty"`
	Origin    string `json:"origin"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func toJSON(verdicts []ct.VerifiedSCT) []verdictJSON {
	out := make([]verdictJSON, 0, len(verdicts))
	for _, verdict := range verdicts {
		out = append(out, verdictJSON{
			LogID:     hex.EncodeToString(verdict.SCT.LogID[:]),
			Log:       verdict.SCT.LogDescription,
			Origin:    verdict.SCT.Origin.String(),
			Status:    verdict.Status.String(),
			Timestamp: verdict.SCT.Time().UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

// handleVerdicts serves /verdicts/<hex sha256 of leaf DER>.
func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hexHash := strings.TrimPrefix(r.URL.Path, "/verdicts/")
	leafHash, err := hex.DecodeString(hexHash)
	if err != nil || len(leafHash) != 32 {
		http.Error(w, "expect hex sha256 of the leaf certificate", http.StatusBadRequest)
		return
	}

	verdicts, found, err := s.store.LookupHash(leafHash)
	if err != nil {
		http.Error(w, "failed to read audit store", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no record for that certificate", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toJSON(verdicts))
}

// handleSummary serves counts of recorded verdicts by origin and status.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary := struct {
		Certificates int            `json:"certificates"`
		Verdicts     map[string]int `json:"verdicts"`
	}{Verdicts: make(map[string]int)}

	err := s.store.Walk(func(key []byte, record []ct.VerifiedSCT) error {
		summary.Certificates++
		for _, verdict := range record {
			k := verdict.SCT.Origin.String() + "/" + verdict.Status.String()
			summary.Verdicts[k]++
		}
		return nil
	})
	if err != nil {
		http.Error(w, "failed to read audit store", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
