package results

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MatchView is the JSON form of a match on the status endpoint.
type MatchView struct {
	Hash      string `json:"hash"`
	Candidate string `json:"candidate"`
	ElapsedNs int64  `json:"elapsed_ns"`
	Source    int    `json:"source"`
}

// Status is the body served by Handler.
type Status struct {
	Count   int         `json:"count"`
	Stats   StoreStats  `json:"stats"`
	Matches []MatchView `json:"matches"`
}

// Handler serves the matches found so far as JSON.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		matches, stats := s.snapshot()
		out := Status{Count: len(matches), Stats: stats, Matches: make([]MatchView, 0, len(matches))}
		for _, m := range matches {
			out.Matches = append(out.Matches, MatchView{
				Hash:      fmt.Sprintf("0x%08x", m.Checksum),
				Candidate: string(m.Candidate),
				ElapsedNs: m.Elapsed.Nanoseconds(),
				Source:    m.Source,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
