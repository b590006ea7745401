package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

// BrokerStatus reports whether the message broker is reachable.
type BrokerStatus interface {
	IsConnected() bool
}

// EmailStatus reports whether the email gateway has credentials.
type EmailStatus interface {
	Initialized() bool
}

// ConsumerStatus reports whether the notification consumer is running.
type ConsumerStatus interface {
	Running() bool
}

// HTTPMetrics records one observation per request.
type HTTPMetrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64)
}

// Dependencies are the collaborators the router dispatches to. Broker, Email,
// Consumer and Metrics may be nil.
type Dependencies struct {
	ServiceName string
	Users       *users.Handler
	Broker      BrokerStatus
	Email       EmailStatus
	Consumer    ConsumerStatus
	Metrics     HTTPMetrics
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// SetupRouter initializes all routes for the application
func SetupRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(deps.ServiceName))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", healthHandler(deps)).Methods("GET")

	api.HandleFunc("/users", deps.Users.ListUsers).Methods("GET")
	api.HandleFunc("/users", deps.Users.CreateUser).Methods("POST")
	api.HandleFunc("/users/{id:[0-9]+}", deps.Users.GetUser).Methods("GET")
	api.HandleFunc("/users/{id:[0-9]+}", deps.Users.UpdateUser).Methods("PUT")
	api.HandleFunc("/users/{id:[0-9]+}", deps.Users.DeleteUser).Methods("DELETE")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Endpoint not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	return r
}

// healthHandler always answers 200; a missing broker or email provider is
// degraded mode, not an outage.
func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rabbitStatus := "disconnected"
		if deps.Broker != nil && deps.Broker.IsConnected() {
			rabbitStatus = "connected"
		}
		consumerStatus := "stopped"
		if deps.Consumer != nil && deps.Consumer.Running() {
			consumerStatus = "running"
		}
		emailStatus := "uninitialized"
		if deps.Email != nil && deps.Email.Initialized() {
			emailStatus = "initialized"
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":          "healthy",
			"message":         "Service is running!",
			"rabbitmq_status": rabbitStatus,
			"consumer_status": consumerStatus,
			"email_status":    emailStatus,
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(metrics HTTPMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status,
				float64(time.Since(start).Microseconds())/1000)
		})
	}
}
