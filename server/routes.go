package server

import (
	"net/http"
	"time"

	"github.com/MattCruikshank/goft/internal/auth"
	"github.com/MattCruikshank/goft/web"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires every page, the WebSocket endpoint, the admin API, and
// the static assets.
func NewRouter(srv *Server, admin *AdminHandler, authenticator *auth.Authenticator, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, RequestLogger(logger), middleware.Recoverer)

	r.HandleFunc("/", srv.HandleIndex).Methods("GET")
	r.HandleFunc("/login", srv.HandleLoginPage).Methods("GET")
	r.HandleFunc("/login", srv.HandleLogin).Methods("POST")
	r.HandleFunc("/signup", srv.HandleSignupPage).Methods("GET")
	r.HandleFunc("/signup", srv.HandleSignup).Methods("POST")
	r.HandleFunc("/logout", srv.HandleLogout).Methods("POST")
	r.HandleFunc("/healthz", srv.HandleHealthz).Methods("GET")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static", web.Handler())).Methods("GET")

	// Everything below requires a session
	app := r.NewRoute().Subrouter()
	app.Use(authenticator.Middleware)
	app.HandleFunc("/rooms", srv.HandleRooms).Methods("GET")
	app.HandleFunc("/rooms/search", srv.HandleSearchRooms).Methods("GET")
	app.HandleFunc("/chat/{id}", srv.HandleChat).Methods("GET")
	app.HandleFunc("/ws/{id}", srv.HandleWebSocket).Methods("GET")

	api := app.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", admin.HandleRooms)
	api.HandleFunc("/rooms/{id}", admin.HandleRoom)
	api.HandleFunc("/rooms/{id}/messages", admin.HandleMessages)

	return r
}

// RequestLogger logs one line per request through zap. Panics recovered by
// middleware.Recoverer further down the chain are logged with their stack.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&zapFormatter{logger: logger})
}

type zapFormatter struct {
	logger *zap.Logger
}

func (f *zapFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &zapEntry{logger: f.logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
	)}
}

type zapEntry struct {
	logger *zap.Logger
}

func (e *zapEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	e.logger.Info("request",
		zap.Int("status", status),
		zap.Int("bytes", bytes),
		zap.Duration("duration", elapsed))
}

func (e *zapEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("handler panicked",
		zap.Any("panic", v),
		zap.ByteString("stack", stack))
}
