package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rocketscienceinc/gomoku-backend/internal/apperror"
	"github.com/rocketscienceinc/gomoku-backend/internal/repository"
	"github.com/rocketscienceinc/gomoku-backend/internal/service"
)

const defaultRecentLimit = 20

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
	RoomHandler(w http.ResponseWriter, r *http.Request)
	RecentMatchesHandler(w http.ResponseWriter, r *http.Request)
}

type gameplayService interface {
	State(ctx context.Context, roomID string) (*service.GameState, error)
}

type matchArchive interface {
	Recent(ctx context.Context, limit int) ([]*repository.ArchivedMatch, error)
}

type handlers struct {
	logger   *slog.Logger
	gameplay gameplayService
	archive  matchArchive
}

func NewHandlers(logger *slog.Logger, gameplay gameplayService, archive matchArchive) Handlers {
	return &handlers{
		logger:   logger.With("component", "rest"),
		gameplay: gameplay,
		archive:  archive,
	}
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// RoomHandler returns a read-only snapshot of a room and its game.
func (that *handlers) RoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	state, err := that.gameplay.State(r.Context(), roomID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, state)
}

func (that *handlers) RecentMatchesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	matches, err := that.archive.Recent(r.Context(), limit)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, matches)
}

func (that *handlers) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *handlers) writeError(w http.ResponseWriter, err error) {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case apperror.KindValidation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperror.KindConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	case apperror.KindForbidden:
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		that.logger.Error("request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
