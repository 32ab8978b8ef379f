package httpapi

import (
	"net/http"
	"sort"
)

type adapterInfo struct {
	Domain       string                 `json:"domain"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities"`
	Schema       map[string]interface{} `json:"schema"`
	Examples     []string               `json:"examples"`
}

// handleListAdapters describes every registered domain adapter so
// clients can discover what the assistant can answer.
func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	registry := s.queries.Registry()

	domains := registry.Domains()
	sort.Strings(domains)

	infos := make([]adapterInfo, 0, len(domains))
	for _, domain := range domains {
		adapter, err := registry.Get(domain)
		if err != nil {
			continue
		}
		caps := adapter.Capabilities()
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		infos = append(infos, adapterInfo{
			Domain:       adapter.Domain(),
			Version:      adapter.Version(),
			Capabilities: names,
			Schema:       adapter.Schema(),
			Examples:     adapter.Examples(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"adapters": infos})
}

// handleAdapterHealth probes every adapter concurrently.
func (s *Server) handleAdapterHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.queries.AdapterHealth(r.Context())

	healthy := true
	for _, status := range statuses {
		if !status.Healthy {
			healthy = false
			break
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy":  healthy,
		"adapters": statuses,
	})
}
