package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RouterConfig holds settings for SetupRoutes
type RouterConfig struct {
	APIPrefix   string
	CORSOrigins []string
	Logger      *logrus.Logger
}

// NewServerHandler wraps the router with CORS. CORS sits outside the router so
// preflight requests are answered before route and method matching.
func NewServerHandler(handler *Handler, cfg RouterConfig) http.Handler {
	return CORS(cfg.CORSOrigins)(SetupRoutes(handler, cfg))
}

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID, Recovery(cfg.Logger), Logging(cfg.Logger))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.HandleFunc("/health/ping", handler.Ping).Methods("GET")
	r.HandleFunc("/health/ready", handler.Ready).Methods("GET")

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.PathPrefix(prefix).Subrouter()

	// Public auth routes
	api.HandleFunc("/auth/register", handler.Register).Methods("POST")
	api.HandleFunc("/auth/login", handler.Login).Methods("POST")

	// Authenticated routes
	authed := api.NewRoute().Subrouter()
	authed.Use(handler.Authenticate)
	authed.HandleFunc("/auth/logout", handler.Logout).Methods("POST")
	authed.HandleFunc("/users/me", handler.Me).Methods("GET")
	authed.HandleFunc("/stocks", handler.GetAllStocks).Methods("GET")
	authed.HandleFunc("/stocks/{ticker}", handler.GetStock).Methods("GET")
	authed.HandleFunc("/stocks/{ticker}/prices", handler.GetPrices).Methods("GET")
	authed.HandleFunc("/stocks/{ticker}/chart", handler.GetChart).Methods("GET")

	// Superuser routes
	admin := authed.NewRoute().Subrouter()
	admin.Use(RequireSuperuser)
	admin.HandleFunc("/users", handler.ListUsers).Methods("GET")
	admin.HandleFunc("/users/{id}", handler.UpdateUser).Methods("PATCH")
	admin.HandleFunc("/users/{id}", handler.DeleteUser).Methods("DELETE")
	admin.HandleFunc("/stocks", handler.AddStock).Methods("POST")
	admin.HandleFunc("/stocks/{ticker}", handler.UpdateStock).Methods("PATCH")
	admin.HandleFunc("/stocks/{ticker}", handler.RemoveStock).Methods("DELETE")
	admin.HandleFunc("/stocks/{ticker}/prices", handler.PurgePrices).Methods("DELETE")
	admin.HandleFunc("/stocks/{ticker}/prices/refresh", handler.RefreshPrices).Methods("POST")

	return r
}
