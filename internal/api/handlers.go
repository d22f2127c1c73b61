// Package api exposes the HTTP surface: health and session endpoints, the
// language list, and the websocket endpoint every room event flows through.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/paulgasbarra/together-we-code/internal/auth"
	"github.com/paulgasbarra/together-we-code/internal/dispatch"
	"github.com/paulgasbarra/together-we-code/internal/models"
	"github.com/paulgasbarra/together-we-code/internal/session"
	"github.com/paulgasbarra/together-we-code/internal/store"
)

// submitter runs the submit pipeline. *dispatch.Dispatcher satisfies it.
type submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.Submission, error)
}

// languageLister reports the registered execution languages.
type languageLister interface {
	Names() []string
}

type Handlers struct {
	log        *zap.SugaredLogger
	hub        *session.Hub
	sessions   store.SessionStore
	dispatcher submitter
	languages  languageLister
	auth       *auth.Authenticator

	// submitTimeout bounds one submission including queue wait.
	submitTimeout time.Duration
}

func NewHandlers(log *zap.SugaredLogger, hub *session.Hub, sessions store.SessionStore,
	dispatcher submitter, languages languageLister, a *auth.Authenticator) *Handlers {
	return &Handlers{
		log:           log,
		hub:           hub,
		sessions:      sessions,
		dispatcher:    dispatcher,
		languages:     languages,
		auth:          a,
		submitTimeout: 2 * time.Minute,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.languages.Names())
}

// GetSession returns the stored session record.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.log.Errorw("failed to fetch session", "sessionId", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sess)
}

type mintTokenRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type mintTokenResponse struct {
	Token string `json:"token"`
}

// MintToken issues a session access token for a known, active session.
func (h *Handlers) MintToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.log.Errorw("failed to fetch session", "sessionId", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !sess.IsActive {
		http.Error(w, "session is not active", http.StatusConflict)
		return
	}

	token, err := h.auth.Mint(id, req.UserID, req.Username)
	if err != nil {
		h.log.Errorw("failed to mint token", "sessionId", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, mintTokenResponse{Token: token})
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// SessionWS upgrades the connection and runs its event loop. Identity comes
// from a session token when one is presented, otherwise from query
// parameters. A token pins the connection to the session it was minted for.
func (h *Handlers) SessionWS(w http.ResponseWriter, r *http.Request) {
	participant, boundSession, ok := h.identify(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := session.NewClient(conn, participant)
	defer h.hub.Leave(client)

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case models.EventJoinSession:
			var req models.JoinSessionRequest
			remarshal(env.Data, &req)
			h.handleJoin(r.Context(), client, req, boundSession)

		case models.EventCodeUpdate:
			var delta models.CodeDelta
			remarshal(env.Data, &delta)
			h.handleCodeUpdate(client, delta)

		case models.EventSubmitAnswer:
			var req models.SubmitRequest
			remarshal(env.Data, &req)
			h.handleSubmit(client, req)

		default:
			client.Send(errEnvelope("unknown event type: " + env.Type))
		}
	}
}

// identify resolves the participant behind the request. Returns the session
// the connection is pinned to ("" when identified by query parameters).
func (h *Handlers) identify(w http.ResponseWriter, r *http.Request) (models.Participant, string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			extracted, err := auth.ExtractTokenFromHeader(header)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return models.Participant{}, "", false
			}
			token = extracted
		}
	}
	if token != "" {
		claims, err := h.auth.Validate(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return models.Participant{}, "", false
		}
		return models.Participant{
			SessionID: claims.SessionID,
			UserID:    claims.UserID,
			Username:  claims.Username,
		}, claims.SessionID, true
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing token or userId", http.StatusUnauthorized)
		return models.Participant{}, "", false
	}
	return models.Participant{
		UserID:   userID,
		Username: r.URL.Query().Get("username"),
	}, "", true
}

func (h *Handlers) handleJoin(ctx context.Context, client *session.Client, req models.JoinSessionRequest, boundSession string) {
	if req.SessionID == "" {
		client.Send(errEnvelope("sessionId is required"))
		return
	}
	if boundSession != "" && req.SessionID != boundSession {
		client.Send(errEnvelope("token not valid for session: " + req.SessionID))
		return
	}

	sess, err := h.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			client.Send(errEnvelope("unknown session: " + req.SessionID))
			return
		}
		h.log.Errorw("failed to fetch session", "sessionId", req.SessionID, "error", err)
		client.Send(errEnvelope("internal error"))
		return
	}
	if !sess.IsActive {
		client.Send(errEnvelope("session is not active: " + req.SessionID))
		return
	}

	h.hub.Join(client, req.SessionID)
}

func (h *Handlers) handleCodeUpdate(client *session.Client, delta models.CodeDelta) {
	room, ok := h.hub.RoomOf(client)
	if !ok {
		client.Send(errEnvelope("join a session first"))
		return
	}
	room.Broadcast(client, models.Envelope{
		Type: models.EventCodeChanged,
		Data: models.CodeChanged{
			QuestionID: delta.QuestionID,
			UserID:     client.Participant().UserID,
			Code:       delta.Code,
		},
	})
}

// handleSubmit hands the submission to the dispatcher off the read loop, so
// code-update events keep flowing while tests execute.
func (h *Handlers) handleSubmit(client *session.Client, req models.SubmitRequest) {
	room, ok := h.hub.RoomOf(client)
	if !ok {
		client.Send(errEnvelope("join a session first"))
		return
	}
	req.SessionID = room.ID
	req.UserID = client.Participant().UserID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.submitTimeout)
		defer cancel()

		_, err := h.dispatcher.Submit(ctx, req)
		switch {
		case err == nil:
		case dispatch.IsValidation(err):
			client.Send(errEnvelope(err.Error()))
		case errors.Is(err, dispatch.ErrBusy):
			client.Send(errEnvelope("execution pool is busy, try again shortly"))
		default:
			h.log.Errorw("submission failed", "sessionId", req.SessionID, "userId", req.UserID, "error", err)
			client.Send(errEnvelope("internal error"))
		}
	}()
}

func remarshal(in any, out any) { b, _ := json.Marshal(in); _ = json.Unmarshal(b, out) }

func errEnvelope(msg string) models.Envelope {
	return models.Envelope{Type: models.EventError, Data: msg}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
