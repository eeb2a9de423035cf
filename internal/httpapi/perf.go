package httpapi

import (
	"net/http"
	"strings"

	"github.com/agentic-traveler/traveler/internal/observability"
)

// handlePerfLatency reports the rolling per-stage latency window. An optional
// ?stage=a,b query narrows the stages returned.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.SnapshotStages()
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		snap.Stages = filterStages(snap.Stages, strings.Split(raw, ","))
	}
	if snap.Stages == nil {
		snap.Stages = []observability.StageStats{}
	}
	respondJSON(w, http.StatusOK, snap)
}

func filterStages(stats []observability.StageStats, names []string) []observability.StageStats {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = true
		}
	}
	out := make([]observability.StageStats, 0, len(want))
	for _, st := range stats {
		if want[st.Stage] {
			out = append(out, st)
		}
	}
	return out
}
