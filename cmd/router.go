package main

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/replica-failover/internal/handler"
	"github.com/angeloszaimis/replica-failover/internal/metrics"
	"github.com/angeloszaimis/replica-failover/internal/selector"
)

const fallbackPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Service unavailable</title></head>
<body>
<h1>Service temporarily unavailable</h1>
<p>None of the application servers could be reached. Please try again in a moment.</p>
<p><a href="/">Retry</a></p>
</body>
</html>
`

type replicaView struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Endpoint string `json:"endpoint"`
	Active   bool   `json:"active"`
}

type selectionView struct {
	Strategy       string        `json:"strategy"`
	ActiveIndex    int           `json:"active_index"`
	ActiveEndpoint string        `json:"active_endpoint,omitempty"`
	KnownGood      []int         `json:"known_good"`
	Replicas       []replicaView `json:"replicas"`
}

func setupRouter(gatewayHandler *handler.GatewayHandler, metricsCollector *metrics.Collector, sel *selector.Selector, fallbackPath string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", gatewayHandler)
	mux.HandleFunc("/metrics", metricsCollector.Handler(sel.StrategyName()))
	mux.HandleFunc("/replicas", replicasHandler(sel))
	mux.HandleFunc(fallbackPath, fallbackHandler)

	return mux
}

func replicasHandler(sel *selector.Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := sel.State()

		view := selectionView{
			Strategy:    sel.StrategyName(),
			ActiveIndex: state.ActiveIndex,
			KnownGood:   state.KnownGood,
		}
		if state.ActiveEndpoint != nil {
			view.ActiveEndpoint = state.ActiveEndpoint.String()
		}
		for _, rep := range sel.Replicas() {
			view.Replicas = append(view.Replicas, replicaView{
				Index:    rep.Index,
				Label:    rep.Label,
				Endpoint: rep.Endpoint.String(),
				Active:   rep.Index == state.ActiveIndex,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func fallbackHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(fallbackPage))
}
