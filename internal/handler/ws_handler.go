package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/syziel1/zrozoom-quiz-backend/internal/middleware"
	"github.com/syziel1/zrozoom-quiz-backend/internal/service"
	ws "github.com/syziel1/zrozoom-quiz-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles WebSocket quiz play streaming.
type WSHandler struct {
	quizService *service.QuizService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(quizService *service.QuizService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		quizService: quizService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// QuizWebSocketStream godoc
// WS /ws/v1/quiz/sessions/:session_id/stream
// Upgrades to WebSocket for real-time answering and instant grading.
func (h *WSHandler) QuizWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID

	wsLog := h.log.With().
		Int("user_id", userID).
		Str("session_id", sessionID.String()).
		Logger()

	// Resume: send the pending question so a reconnecting client can
	// pick up where it left off.
	resumed, err := h.quizService.ActiveSession(context.Background(), userID)
	if err != nil || resumed.Session.ID != sessionID {
		ws.WriteError(conn, "no active session with this ID")
		return
	}
	if err := ws.WriteTyped(conn, ws.QuestionResponse{
		Event:    ws.EventQuestion,
		Question: &resumed.Question,
	}); err != nil {
		return
	}

	wsLog.Info().Msg("Player connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			if h.handleAnswer(conn, wsLog, userID, sessionID, &msg) {
				return
			}
		case ws.ActionFinish:
			h.handleFinish(conn, wsLog, userID, sessionID)
			return
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAnswer grades a single answer. Returns true when the session
// completed and the connection should close.
func (h *WSHandler) handleAnswer(conn *websocket.Conn, log zerolog.Logger, userID int, sessionID uuid.UUID, msg *ws.RequestPayload) bool {
	ctx := context.Background()

	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		ws.WriteError(conn, "invalid question_id format")
		return false
	}
	if msg.Answer == "" {
		ws.WriteError(conn, "answer is required")
		return false
	}

	outcome, err := h.quizService.Answer(ctx, userID, sessionID, questionID, msg.Answer)
	if err != nil {
		ws.WriteError(conn, wsErrorMessage(err))
		return false
	}

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:         ws.EventGraded,
		Correct:       outcome.Correct,
		CorrectAnswer: outcome.CorrectAnswer,
		NextQuestion:  outcome.NextQuestion,
	})

	// The last answer completes the session; push the final result too.
	if outcome.NextQuestion == nil {
		result, err := h.quizService.Finish(ctx, userID, sessionID)
		if err != nil {
			log.Error().Err(err).Msg("Finish after last answer failed")
			return true
		}
		ws.WriteTyped(conn, ws.FinishedResponse{Event: ws.EventFinished, Result: result})
		return true
	}

	return false
}

// handleFinish finishes the session early and pushes the final result.
func (h *WSHandler) handleFinish(conn *websocket.Conn, log zerolog.Logger, userID int, sessionID uuid.UUID) {
	result, err := h.quizService.Finish(context.Background(), userID, sessionID)
	if err != nil {
		ws.WriteError(conn, wsErrorMessage(err))
		return
	}

	log.Info().Int("score", result.Score).Msg("Session finished over WebSocket")
	ws.WriteTyped(conn, ws.FinishedResponse{Event: ws.EventFinished, Result: result})
}

func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, service.ErrSessionNotActive):
		return "session is not active"
	case errors.Is(err, service.ErrQuestionMismatch):
		return "question does not match the pending question"
	case errors.Is(err, service.ErrConflict):
		return "session was modified concurrently"
	default:
		return "internal error"
	}
}
