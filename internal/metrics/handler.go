package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the snapshot as JSON. With ?replica=<label> only that
// replica's counters are returned, or 404 if it has none yet.
func (c *Collector) Handler(strategy string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.metrics.Snapshot(strategy)

		var body any = snap
		if label := r.URL.Query().Get("replica"); label != "" {
			rm, ok := snap.Replicas[label]
			if !ok {
				http.Error(w, "unknown replica "+label, http.StatusNotFound)
				return
			}
			body = rm
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
