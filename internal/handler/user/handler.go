package user

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
	"github.com/zhouzirui/z-favorites/backend/pkg/utils"
)

// Service is the part of the synchronizer the user list needs.
type Service interface {
	Users() []user.User
	ToggleFavorite(ctx context.Context, id int) (user.User, error)
}

// Handler 用户列表的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建用户列表处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册用户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleListUsers)
	r.Post("/users/{id}/favorite", h.handleToggleFavorite)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Users())
}

func (h *Handler) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.IntURLParam(r, "id")
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	updated, err := h.svc.ToggleFavorite(r.Context(), id)
	if err != nil {
		if errors.Is(err, favorites.ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "user not found")
			return
		}
		if errors.Is(err, favorites.ErrClosed) {
			utils.RespondError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		log.Printf("[user] toggle favorite id=%d: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "toggle failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, updated)
}
