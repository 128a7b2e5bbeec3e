package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	chatService "github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/internal/service/widget"
	"github.com/consultationhouse/site/backend/pkg/utils"
)

// Handler exposes widget instances over REST.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the widget REST handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes registers widget routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/widgets", h.handleMount)
	r.Get("/widgets/{widgetID}", h.handleSnapshot)
	r.Delete("/widgets/{widgetID}", h.handleUnmount)
	r.Post("/widgets/{widgetID}/open", h.handleOpen)
	r.Post("/widgets/{widgetID}/close", h.handleClose)
	r.Get("/widgets/{widgetID}/messages", h.handleTranscript)
	r.Post("/widgets/{widgetID}/messages", h.handleSend)
}

// handleMount mounts a widget for a page load.
func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	// An empty body selects the default persona.
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, _, err := h.chatSvc.Mount(r.Context(), payload.PersonaID)
	if err != nil {
		if errors.Is(err, chatService.ErrPersonaNotFound) {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	manager, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, manager.Snapshot())
}

func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Unmount(r.Context(), chi.URLParam(r, "widgetID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, "widget not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	manager, ok := h.lookup(w, r)
	if !ok {
		return
	}
	manager.Open(r.Context())
	utils.RespondJSON(w, http.StatusOK, manager.Snapshot())
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	manager, ok := h.lookup(w, r)
	if !ok {
		return
	}
	manager.Close()
	utils.RespondJSON(w, http.StatusOK, manager.Snapshot())
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	manager, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, manager.Messages())
}

// handleSend submits user text. Synchronous by default; ?async=true returns
// as soon as the user message is in the transcript.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	manager, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		user, err := manager.Submit(r.Context(), payload.Text)
		if err != nil {
			respondRejected(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusAccepted, map[string]any{"user": user})
		return
	}

	// A dropped connection must not cancel the backend call; the reply
	// still belongs in the transcript.
	exchange, err := manager.Send(context.WithoutCancel(r.Context()), payload.Text)
	if err != nil {
		respondRejected(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*widget.Manager, bool) {
	manager, err := h.chatSvc.Get(r.Context(), chi.URLParam(r, "widgetID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "widget not found")
		return nil, false
	}
	return manager, true
}

func respondRejected(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, widget.ErrEmptyMessage):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, widget.ErrTooManyInFlight):
		utils.RespondError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error().Err(err).Msg("unexpected send rejection")
		utils.RespondError(w, http.StatusInternalServerError, "send failed")
	}
}
