package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/configuration"
)

// ProvidePool makes the database pool available to repositories through the
// request context.
func ProvidePool(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(composables.WithPool(r.Context(), pool)))
		})
	}
}

// ProvideActor resolves the caller identity from the configured header. The
// authentication handshake itself happens upstream; a request without a valid
// actor id cannot mutate anything and is rejected here for mutating methods.
func ProvideActor() mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(conf.ActorIDHeader))
			if raw == "" {
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "missing actor identity", http.StatusUnauthorized)
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid actor identity", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithActorID(r.Context(), actorID)))
		})
	}
}

// RequestLogger attaches a request-scoped logrus entry and logs request
// completion with duration.
func RequestLogger(logger *logrus.Logger) mux.MiddlewareFunc {
	conf := configuration.Use()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(conf.RequestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
				r.Header.Set(conf.RequestIDHeader, requestID)
			}

			entry := logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			start := time.Now()
			ctx := composables.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(composables.WithLogger(ctx, entry)))
			entry.WithField("duration", time.Since(start).String()).Info("request completed")
		})
	}
}
