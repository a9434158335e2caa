// Package debug exposes the operational side channel of a berth
// process: Prometheus metrics, pprof profiles, and liveness/readiness
// probes, all served on a dedicated port away from upload traffic.
package debug

import (
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	// Custom handlers registered by other packages
	customHandlersMu sync.RWMutex
	customHandlers   = make(map[string]http.Handler)

	// Custom readiness check function (optional)
	customReadyCheckMu sync.RWMutex
	customReadyCheck   func() bool

	// Global registry for custom metrics
	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// SetReadyCheck registers a custom readiness check function.
// If set, IsReady() returns true only if both SetReady() has been
// called and the check function returns true.
func SetReadyCheck(check func() bool) {
	customReadyCheckMu.Lock()
	defer customReadyCheckMu.Unlock()
	customReadyCheck = check
}

func IsReady() bool {
	if !ready.Load() {
		return false
	}

	customReadyCheckMu.RLock()
	check := customReadyCheck
	customReadyCheckMu.RUnlock()

	if check != nil {
		return check()
	}

	return true
}

// RegisterHandler registers a custom handler on the debug mux.
// Must be called before GetMux() to be included.
func RegisterHandler(pattern string, handler http.Handler) {
	customHandlersMu.Lock()
	defer customHandlersMu.Unlock()
	customHandlers[pattern] = handler
}

// RegisterHandlerFunc registers a custom handler function on the debug mux.
// Must be called before GetMux() to be included.
func RegisterHandlerFunc(pattern string, handler http.HandlerFunc) {
	RegisterHandler(pattern, handler)
}

// Registry returns the Prometheus registry for registering custom metrics.
// Metrics registered here are exported on /metrics alongside default metrics.
func Registry() *prometheus.Registry {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Combine the Go runtime defaults with our custom registry
	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	for _, profile := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/debug/"+profile+"/", pprof.Handler(profile))
	}
	mux.Handle("/debug/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	customHandlersMu.RLock()
	defer customHandlersMu.RUnlock()
	for pattern, handler := range customHandlers {
		mux.Handle(pattern, handler)
	}

	return mux
}
