package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// pprofPrefix is where profiling endpoints are mounted.
const pprofPrefix = "/debug/pprof"

// ProfilingConfig configures the profiling middleware.
type ProfilingConfig struct {
	// Enabled controls whether profiling endpoints are exposed.
	Enabled bool
	// Environment is checked so profiling never runs in production.
	Environment string
}

// Profiling returns middleware that serves pprof endpoints under /debug/pprof.
// It is a pass-through when disabled or when Environment is production.
// View builds are the heaviest thing the server does, and the CPU and heap
// profiles are the usual way to look at one:
//
//	go tool pprof http://localhost:8080/debug/pprof/profile?seconds=30
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("profiling cannot be enabled in production environment",
				"environment", config.Environment,
			)
			return next
		}

		slog.Warn("profiling endpoints enabled",
			"environment", config.Environment,
			"endpoints", pprofPrefix+"/*",
		)

		mux := http.NewServeMux()
		mux.HandleFunc(pprofPrefix+"/", pprof.Index)
		mux.HandleFunc(pprofPrefix+"/cmdline", pprof.Cmdline)
		mux.HandleFunc(pprofPrefix+"/profile", pprof.Profile)
		mux.HandleFunc(pprofPrefix+"/symbol", pprof.Symbol)
		mux.HandleFunc(pprofPrefix+"/trace", pprof.Trace)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == pprofPrefix || strings.HasPrefix(r.URL.Path, pprofPrefix+"/") {
				mux.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
