package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// SessionService is the attempt lifecycle the handlers expose.
// *service.SessionService implements it.
type SessionService interface {
	Instructions(ctx context.Context, takerID int, testID uuid.UUID) (*model.TestInstructions, error)
	Start(ctx context.Context, takerID int, testID uuid.UUID) (*model.SessionDetails, error)
	Ongoing(ctx context.Context, takerID int, testID uuid.UUID) (*model.SessionDetails, error)
	Details(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.SessionDetails, error)
	SaveAnswer(ctx context.Context, takerID int, sessionID uuid.UUID, save model.AnswerSave) error
	Submit(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.Session, error)
	Result(ctx context.Context, takerID int, sessionID uuid.UUID) (*model.Result, error)
}

// SessionHandler handles the taker-facing exam endpoints.
type SessionHandler struct {
	sessions SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/exam/start
// Creates the taker's session for a test, or returns the running one.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	details, err := h.sessions.Start(c.Request.Context(), claims.UserID, req.TestID)
	if err != nil {
		h.fail(c, err, response.ErrTestNotFound)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// GetInstructions godoc
// GET /api/v1/exam/tests/:test_id/instructions
// Returns what the taker reads and agrees to before starting.
func (h *SessionHandler) GetInstructions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	instructions, err := h.sessions.Instructions(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		h.fail(c, err, response.ErrTestNotFound)
		return
	}

	response.Success(c, http.StatusOK, instructions)
}

// GetOngoing godoc
// GET /api/v1/exam/tests/:test_id/ongoing
// Returns the running session of a test for page reloads and reconnects.
func (h *SessionHandler) GetOngoing(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	details, err := h.sessions.Ongoing(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		h.fail(c, err, response.ErrSessionNotFound)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// GetDetails godoc
// GET /api/v1/exam/sessions/:session_id/details
func (h *SessionHandler) GetDetails(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	details, err := h.sessions.Details(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err, response.ErrSessionNotFound)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// SaveAnswer godoc
// PUT /api/v1/exam/sessions/:session_id/answers
// Persists the current answer and review mark of one question.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	var req model.AnswerSave
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.SaveAnswer(c.Request.Context(), claims.UserID, sessionID, req); err != nil {
		h.fail(c, err, response.ErrSessionNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved", "revision": req.Revision})
}

// Submit godoc
// POST /api/v1/exam/sessions/:session_id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	session, err := h.sessions.Submit(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err, response.ErrSessionNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetResult godoc
// GET /api/v1/exam/sessions/:session_id/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	claims, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	result, err := h.sessions.Result(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err, response.ErrSessionNotFound)
		return
	}

	// A graded result is final; the group default is no-store.
	c.Header("Cache-Control", middleware.PrivateImmutable)
	response.Success(c, http.StatusOK, result)
}

// sessionParams reads the caller and the :session_id path parameter,
// writing the error response itself when either is missing.
func sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}

func (h *SessionHandler) fail(c *gin.Context, err error, notFound response.ErrCode) {
	status, _ := response.ClassifyError(err, notFound)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.FailFromError(c, err, notFound)
}
