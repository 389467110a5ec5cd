package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rns-lang/x64codegen/config"
	"github.com/rns-lang/x64codegen/trace"
)

// handleHealth reports liveness and the number of builds registered so far.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"builds": s.builds.Count(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleListBuilds handles GET /api/v1/builds.
func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids := s.builds.List()
	out := make([]BuildSummary, 0, len(ids))
	for _, id := range ids {
		b, err := s.builds.Get(id)
		if err != nil {
			continue
		}
		out = append(out, summarize(b))
	}
	writeJSON(w, http.StatusOK, BuildListResponse{Builds: out})
}

// handleBuildRoute handles /api/v1/builds/{id} and /api/v1/builds/{id}/{trace,stats}.
func (s *Server) handleBuildRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/builds/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "build id required")
		return
	}
	id := parts[0]
	b, err := s.builds.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "build not found")
		return
	}

	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, summarize(b))
		return
	}

	switch parts[1] {
	case "trace":
		s.handleBuildTrace(w, b)
	case "stats":
		s.handleBuildStats(w, b)
	default:
		writeError(w, http.StatusNotFound, "unknown build route")
	}
}

func (s *Server) handleBuildTrace(w http.ResponseWriter, b *Build) {
	entries := b.Trace.Entries()
	out := make([]BuildEventResponse, len(entries))
	for i, e := range entries {
		out[i] = BuildEventResponse{
			Sequence: e.Sequence,
			Function: e.Function,
			Kind:     e.Kind.String(),
			Mnemonic: e.Mnemonic,
			Offset:   e.Offset,
			Detail:   e.Detail,
			Length:   e.Length,
		}
	}
	writeJSON(w, http.StatusOK, BuildTraceResponse{BuildID: b.ID, Events: out})
}

func (s *Server) handleBuildStats(w http.ResponseWriter, b *Build) {
	stats := trace.NewStats(b.Trace)
	top := stats.TopMnemonics(20)
	rows := make([]MnemonicCount, len(top))
	for i, m := range top {
		rows[i] = MnemonicCount{Mnemonic: m.Mnemonic, Count: m.Count, Bytes: m.Bytes}
	}
	writeJSON(w, http.StatusOK, BuildStatsResponse{
		BuildID:           b.ID,
		TotalInstructions: stats.TotalInstructions,
		TotalBytes:        stats.TotalBytes,
		TotalStackSlots:   stats.TotalStackSlots,
		LabelBinds:        stats.LabelBinds,
		TopMnemonics:      rows,
	})
}

// handleConfig handles GET /api/v1/config: the ABI, buffer sizing, and
// trace/api settings read from the default config file on each request.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cfg, err := config.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func summarize(b *Build) BuildSummary {
	return BuildSummary{
		ID:          b.ID,
		Function:    b.Function,
		CreatedAt:   b.CreatedAt,
		Done:        b.Done,
		EntryOffset: b.EntryOffset,
		ByteSize:    b.ByteSize,
		Error:       b.Err,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
