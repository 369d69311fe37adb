package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	favoriteHandler "github.com/zhouzirui/z-favorites/backend/internal/handler/favorite"
	"github.com/zhouzirui/z-favorites/backend/internal/handler/live"
	"github.com/zhouzirui/z-favorites/backend/internal/handler/stream"
	userHandler "github.com/zhouzirui/z-favorites/backend/internal/handler/user"
	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
	"github.com/zhouzirui/z-favorites/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the favorites synchronizer.
func NewRouter(favoritesSvc *favorites.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// The API carries no credentials, so any origin may call it.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// Primary list and per-row toggle
		userHandler.New(favoritesSvc).RegisterRoutes(api)

		// Favorites view with remove control
		favoriteHandler.New(favoritesSvc).RegisterRoutes(api)

		// Change feeds for clients that render live
		stream.New(favoritesSvc).RegisterRoutes(api)
		live.NewWebSocketHandler(favoritesSvc).RegisterRoutes(api)
	})

	return r
}
