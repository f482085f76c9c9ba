package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Morditux/sessionstore"
)

// newRouter wires the demo routes: a per-session visit counter, logout,
// prometheus metrics and a health check.
func newRouter(mgr *sessionstore.Manager, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		session, err := mgr.Get(r)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to load session", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		count := 0
		if val, ok := session.Get("count"); ok {
			count, _ = strconv.Atoi(val)
		}
		count++
		session.Set("count", strconv.Itoa(count))

		if err := mgr.Save(w, r, session); err != nil {
			logger.ErrorContext(r.Context(), "failed to save session", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		fmt.Fprintf(w, "Hello! You have visited this page %d times.", count)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		session, err := mgr.Get(r)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to load session", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		if err := mgr.Destroy(w, r, session); err != nil {
			logger.ErrorContext(r.Context(), "failed to destroy session", "error", err)
			http.Error(w, "logout failed", http.StatusInternalServerError)
			return
		}

		fmt.Fprint(w, "Logged out!")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
