/*
Package api exposes the registry over JSON/HTTP.

MIDDLEWARE STACK:
 1. RequestID:  chi request id, copied into the logger context
 2. AccessLog:  one zap line per request
 3. Recoverer:  panic recovery (500 instead of crash)
 4. CORS:       cross-origin requests

ROUTES:
  /api/items/*    catalog
  /api/members/*  borrowers and their loans
  /api/loans/*    issue and return
  /healthz        liveness
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"libralend/internal/catalog"
	"libralend/internal/circulation"
	"libralend/internal/library"
	"libralend/internal/logger"
	"libralend/internal/membership"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(reg *library.Registry, log *logger.Logger, allowedOrigins []string) *chi.Mux {
	if log == nil {
		log = logger.Nop()
	}
	items := catalog.NewHandler(reg.Catalog())
	members := membership.NewHandler(reg.Membership())
	loans := circulation.NewHandler(reg.Circulation())

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(contextLogger(log))
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", items.HandleListItems)
			r.Post("/", items.HandleAddItem)
			r.Get("/{id}", items.HandleGetItem)
		})

		r.Route("/members", func(r chi.Router) {
			r.Post("/", members.HandleRegisterMember)
			r.Get("/fines", members.HandleListWithFines)
			r.Get("/{id}", members.HandleGetMember)
			r.Get("/{id}/loans", loans.HandleLoansOfMember)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", loans.HandleCheckout)
			r.Post("/{id}/return", loans.HandleReturn)
		})
	})

	return r
}

// contextLogger stores log and the chi request id in the request context so
// handlers and services log with the request id attached.
func contextLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.NewRequestIDContext(r.Context(), middleware.GetReqID(r.Context()))
			ctx = logger.NewContext(ctx, log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			ctx := r.Context()
			logger.Log(ctx).Info(ctx, "http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		}()
		next.ServeHTTP(ww, r)
	})
}
