// Package server exposes the messaging backend over HTTP and WebSocket.
package server

import (
	"log/slog"
	"moonshop/auth"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type RouterConfig struct {
	AuthRequired   bool
	AllowedOrigins []string
}

type Handlers struct {
	Chat         *ChatHandler
	Auth         *AuthHandler
	Notification *NotificationHandler
	Websocket    *WebsocketHandler
}

// NewRouter wires every route. Chat and notification routes go through the
// token middleware, which is a pass-through unless AuthRequired is set.
func NewRouter(handlers Handlers, tokens *auth.TokenManager, config RouterConfig, log *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(log))
	protect := auth.Middleware(tokens, config.AuthRequired, writeError)
	protected := func(h http.HandlerFunc) http.Handler { return protect(h) }

	r.HandleFunc("/healthz", health).Methods(http.MethodGet)
	r.Handle("/ws", handlers.Websocket)

	for _, prefix := range []string{"", "/api/chat"} {
		r.Handle(prefix+"/conversations/{userId}", protected(handlers.Chat.GetConversations)).Methods(http.MethodGet)
		r.Handle(prefix+"/messages/{userId}/{otherUserId}", protected(handlers.Chat.GetMessages)).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/auth/signup", handlers.Auth.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", handlers.Auth.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id}", handlers.Auth.GetUser).Methods(http.MethodGet)
	r.Handle("/api/users/{id}", protected(handlers.Auth.UpdateProfile)).Methods(http.MethodPut)

	r.Handle("/api/users/{id}/notifications", protected(handlers.Notification.List)).Methods(http.MethodGet)
	r.Handle("/api/notifications/{id}/read", protected(handlers.Notification.MarkAsRead)).Methods(http.MethodPut)
	r.Handle("/api/users/{id}/notifications/read-all", protected(handlers.Notification.MarkAllAsRead)).Methods(http.MethodPut)

	return cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}
