package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/game/area"
	"github.com/cory-johannsen/town/internal/game/session"
	"github.com/cory-johannsen/town/internal/game/town"
	"github.com/cory-johannsen/town/internal/game/world"
)

const maxBodyBytes = 1 << 16

// envelope wraps every REST response.
type envelope struct {
	IsOK     bool   `json:"isOK"`
	Response any    `json:"response,omitempty"`
	Message  string `json:"message,omitempty"`
}

type townCreateRequest struct {
	FriendlyName     string `json:"friendlyName"`
	IsPubliclyListed bool   `json:"isPubliclyListed"`
}

type townCreateResponse struct {
	TownID             string `json:"townID"`
	TownUpdatePassword string `json:"townUpdatePassword"`
}

type townUpdateRequest struct {
	TownUpdatePassword string  `json:"townUpdatePassword"`
	FriendlyName       *string `json:"friendlyName,omitempty"`
	IsPubliclyListed   *bool   `json:"isPubliclyListed,omitempty"`
}

type joinRequest struct {
	TownID   string `json:"townID"`
	UserName string `json:"userName"`
}

type joinResponse struct {
	UserID             string                   `json:"userID"`
	SessionToken       string                   `json:"sessionToken"`
	ProviderVideoToken string                   `json:"providerVideoToken"`
	CurrentPlayers     []world.Player           `json:"currentPlayers"`
	FriendlyName       string                   `json:"friendlyName"`
	IsPubliclyListed   bool                     `json:"isPubliclyListed"`
	ConversationAreas  []world.ConversationArea `json:"conversationAreas"`
}

type areaCreateRequest struct {
	SessionToken     string                 `json:"sessionToken"`
	ConversationArea world.ConversationArea `json:"conversationArea"`
}

// AdminHandler serves the JSON REST surface for towns and sessions.
type AdminHandler struct {
	towns  *town.Directory
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler over towns.
//
// Precondition: towns and logger must be non-nil.
func NewAdminHandler(towns *town.Directory, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{towns: towns, logger: logger}
}

// Register installs the REST routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /towns", h.createTown)
	mux.HandleFunc("GET /towns", h.listTowns)
	mux.HandleFunc("PATCH /towns/{townID}", h.updateTown)
	mux.HandleFunc("DELETE /towns/{townID}/{townUpdatePassword}", h.deleteTown)
	mux.HandleFunc("POST /sessions", h.joinTown)
	mux.HandleFunc("POST /towns/{townID}/conversationAreas", h.createConversationArea)
	mux.HandleFunc("GET /towns/{townID}/metrics", h.townMetrics)
	mux.HandleFunc("GET /healthz", h.healthz)
}

// NewRouter returns a mux serving both the REST surface and /ws subscriptions.
func NewRouter(admin *AdminHandler, subs *SubscriptionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	admin.Register(mux)
	mux.Handle("GET /ws", subs)
	return mux
}

func (h *AdminHandler) createTown(w http.ResponseWriter, r *http.Request) {
	var req townCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, password, err := h.towns.Create(req.FriendlyName, req.IsPubliclyListed)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusCreated, townCreateResponse{TownID: t.ID(), TownUpdatePassword: password})
}

func (h *AdminHandler) listTowns(w http.ResponseWriter, _ *http.Request) {
	h.ok(w, http.StatusOK, map[string]any{"towns": h.towns.ListPublic()})
}

func (h *AdminHandler) updateTown(w http.ResponseWriter, r *http.Request) {
	var req townUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.towns.Update(r.PathValue("townID"), req.TownUpdatePassword, req.FriendlyName, req.IsPubliclyListed); err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, nil)
}

func (h *AdminHandler) deleteTown(w http.ResponseWriter, r *http.Request) {
	if err := h.towns.Delete(r.PathValue("townID"), r.PathValue("townUpdatePassword")); err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusOK, nil)
}

func (h *AdminHandler) joinTown(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, ok := h.towns.Get(req.TownID)
	if !ok {
		h.fail(w, fmt.Errorf("%w: %q", town.ErrTownNotFound, req.TownID))
		return
	}
	sess, err := t.AddPlayer(r.Context(), req.UserName)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusCreated, joinResponse{
		UserID:             sess.Player.ID,
		SessionToken:       sess.Token,
		ProviderVideoToken: sess.VideoToken,
		CurrentPlayers:     t.Players(),
		FriendlyName:       t.FriendlyName(),
		IsPubliclyListed:   t.IsPubliclyListed(),
		ConversationAreas:  t.ConversationAreas(),
	})
}

func (h *AdminHandler) createConversationArea(w http.ResponseWriter, r *http.Request) {
	var req areaCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, ok := h.towns.Get(r.PathValue("townID"))
	if !ok {
		h.fail(w, town.ErrTownNotFound)
		return
	}
	if _, ok := t.LookupSession(req.SessionToken); !ok {
		h.fail(w, session.ErrSessionNotFound)
		return
	}
	created, err := t.AddConversationArea(req.ConversationArea)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, http.StatusCreated, created)
}

func (h *AdminHandler) townMetrics(w http.ResponseWriter, r *http.Request) {
	t, ok := h.towns.Get(r.PathValue("townID"))
	if !ok {
		h.fail(w, town.ErrTownNotFound)
		return
	}
	h.ok(w, http.StatusOK, t.Metrics())
}

func (h *AdminHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.ok(w, http.StatusOK, map[string]int{"towns": h.towns.Len()})
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.write(w, http.StatusBadRequest, envelope{Message: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (h *AdminHandler) ok(w http.ResponseWriter, status int, response any) {
	h.write(w, status, envelope{IsOK: true, Response: response})
}

func (h *AdminHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	h.write(w, status, envelope{Message: err.Error()})
}

func (h *AdminHandler) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("writing response", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var perr *town.ProviderError
	switch {
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	case errors.Is(err, town.ErrTownNotFound):
		return http.StatusNotFound
	case errors.Is(err, town.ErrInvalidPassword):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, town.ErrEmptyName),
		errors.Is(err, area.ErrEmptyLabel),
		errors.Is(err, area.ErrEmptyTopic),
		errors.Is(err, area.ErrInvalidBounds):
		return http.StatusBadRequest
	case errors.Is(err, town.ErrTownFull),
		errors.Is(err, town.ErrTownClosed),
		errors.Is(err, area.ErrDuplicateLabel),
		errors.Is(err, area.ErrOverlap):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
