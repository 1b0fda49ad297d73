package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// wsOpTimeout bounds one save or submit issued from a frame.
const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SaveLimiter rations answer saves per taker. *middleware.RateLimiter
// implements it.
type SaveLimiter interface {
	AllowTaker(takerID int) bool
}

// WSHandler streams saves and the submit of one session over a WebSocket.
type WSHandler struct {
	sessions SessionService
	saves    SaveLimiter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. saves is the limiter guarding the
// HTTP save route, so both paths draw from one budget per taker.
func NewWSHandler(sessions SessionService, saves SaveLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		saves:    saves,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=...
// Frames are handled in order, so saves from one connection reach the
// service in the order the client sent them.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	// SECURITY: Check ownership before upgrading so strangers get a plain 404.
	if _, err := h.sessions.Details(c.Request.Context(), claims.UserID, sessionID); err != nil {
		status, code := response.ClassifyError(err, response.ErrSessionNotFound)
		response.Fail(c, status, code)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("taker_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Taker connected")

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			writeCode(conn, response.ErrInvalidPayload, nil)
			continue
		}

		switch env.Action {
		case ws.ActionSave:
			h.handleSave(conn, wsLog, claims.UserID, sessionID, data)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, claims.UserID, sessionID) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			writeCode(conn, response.ErrInvalidPayload, map[string]string{"action": "unknown action: " + string(env.Action)})
		}
	}
}

func (h *WSHandler) handleSave(conn *websocket.Conn, wsLog zerolog.Logger, takerID int, sessionID uuid.UUID, data []byte) {
	var req ws.SaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeCode(conn, response.ErrValidation, validator.TranslateErrors(err))
		return
	}
	if fields := validator.Struct(&req.AnswerSave); fields != nil {
		writeCode(conn, response.ErrValidation, fields)
		return
	}

	if h.saves != nil && !h.saves.AllowTaker(takerID) {
		writeCode(conn, response.ErrRateLimitExceeded, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	if err := h.sessions.SaveAnswer(ctx, takerID, sessionID, req.AnswerSave); err != nil {
		_, code := response.ClassifyError(err, response.ErrSessionNotFound)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Save failed")
		}
		writeCode(conn, code, nil)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:      ws.EventSaved,
		QuestionID: req.QuestionID,
		Revision:   req.Revision,
	})
}

// handleSubmit reports whether the stream is finished.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, takerID int, sessionID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	session, err := h.sessions.Submit(ctx, takerID, sessionID)
	if err != nil {
		_, code := response.ClassifyError(err, response.ErrSessionNotFound)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Submit failed")
		}
		writeCode(conn, code, nil)
		return code == response.ErrSessionCompleted
	}

	wsLog.Info().Msg("Session submitted over stream")
	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Session: session})
	return true
}

func writeCode(conn *websocket.Conn, code response.ErrCode, fields map[string]string) {
	ws.WriteError(conn, string(code), response.GetMessage(code), fields)
}

