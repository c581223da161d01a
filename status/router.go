package status

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

func NewRouter(s *StatusServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	r.Use(c.Handler)

	r.Get("/healthz", s.Healthz)
	r.Get("/sessions", s.Sessions)
	r.Get("/sessions/{id}", s.Session)
	r.Get("/leaderboard", s.Leaderboard)

	return r
}

func NewHTTPServer(addr string, s *StatusServer, allowedOrigins []string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s, allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
