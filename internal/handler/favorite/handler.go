package favorite

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

const emptyMessage = "No favorites yet"

// Service is the part of the synchronizer the favorites view needs.
type Service interface {
	Favorites() []user.User
	RemoveFromFavorites(ctx context.Context, id int) (bool, error)
}

// Handler 收藏列表的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建收藏列表处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册收藏相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/favorites", h.handleListFavorites)
	r.Delete("/favorites/{id}", h.handleRemoveFavorite)
}

type listResponse struct {
	Favorites []user.User `json:"favorites"`
	Empty     bool        `json:"empty"`
	Message   string      `json:"message,omitempty"`
}

func (h *Handler) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Favorites()
	resp := listResponse{Favorites: items, Empty: len(items) == 0}
	if resp.Empty {
		resp.Message = emptyMessage
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleRemoveFavorite 移除收藏；重复删除同样返回204
func (h *Handler) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.IntURLParam(r, "id")
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	if _, err := h.svc.RemoveFromFavorites(r.Context(), id); err != nil {
		if errors.Is(err, favorites.ErrClosed) {
			utils.RespondError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		log.Printf("[favorite] remove id=%d: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "remove failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
