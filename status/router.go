// Package status serves the follower state and diagnostics over HTTP.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/st-keller/librefollow/diag"
	"github.com/st-keller/librefollow/types"
)

// StateSource is implemented by *librefollow.Client.
type StateSource interface {
	Snapshot() types.DisplayState
	Running() bool
}

// Options selects what the router exposes. Nil diagnostics are served as
// 404.
type Options struct {
	State        StateSource
	Gatherer     prometheus.Gatherer
	Connectivity *diag.ConnectivityTracker
	Logs         *diag.RecentLogs
	Info         *diag.ServiceInfo
	Certificates *diag.CertificateMonitor
}

// NewRouter builds the status routes.
func NewRouter(opts Options) *mux.Router {
	h := &handler{opts: opts}
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods("GET")
	r.HandleFunc("/state", h.state).Methods("GET")
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	debug := r.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/connectivity", h.connectivity).Methods("GET")
	debug.HandleFunc("/logs", h.logs).Methods("GET")
	debug.HandleFunc("/info", h.info).Methods("GET")
	debug.HandleFunc("/certificates", h.certificates).Methods("GET")

	return r
}

type handler struct {
	opts Options
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	running := h.opts.State.Running()
	snapshot := h.opts.State.Snapshot()

	code := http.StatusOK
	status := "ok"
	if !running {
		code = http.StatusServiceUnavailable
		status = "stopped"
	}
	writeJSON(w, code, map[string]any{
		"status":          status,
		"session_id":      snapshot.SessionID,
		"has_measurement": snapshot.HasMeasurement,
	})
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.State.Snapshot())
}

func (h *handler) connectivity(w http.ResponseWriter, r *http.Request) {
	if h.opts.Connectivity == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": h.opts.Connectivity.Report(),
	})
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	if h.opts.Logs == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  h.opts.Logs.Entries(),
		"stats": h.opts.Logs.Stats(),
	})
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	if h.opts.Info == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Info)
}

// certificates rescans before answering so that replaced files show up.
func (h *handler) certificates(w http.ResponseWriter, r *http.Request) {
	if h.opts.Certificates.Empty() {
		http.NotFound(w, r)
		return
	}
	_ = h.opts.Certificates.Scan()
	writeJSON(w, http.StatusOK, map[string]any{
		"certificates": h.opts.Certificates.Certificates(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
