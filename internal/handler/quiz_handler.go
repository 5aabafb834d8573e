package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/syziel1/zrozoom-quiz-backend/internal/middleware"
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
	"github.com/syziel1/zrozoom-quiz-backend/internal/response"
	"github.com/syziel1/zrozoom-quiz-backend/internal/service"
	"github.com/syziel1/zrozoom-quiz-backend/internal/validator"
)

const defaultLeaderboardSize = 10

// QuizHandler exposes the quiz session engine over HTTP.
type QuizHandler struct {
	quizService *service.QuizService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// Start godoc
// POST /api/v1/quiz/sessions
// Starts a new quiz session and returns its first question.
func (h *QuizHandler) Start(c *gin.Context) {
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

	result, err := h.quizService.Start(c.Request.Context(), claims.UserID, req.Difficulty)
	if err != nil {
		if errors.Is(err, service.ErrBadDifficulty) {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// GetActive godoc
// GET /api/v1/quiz/sessions/active
// Returns the caller's most recent ACTIVE session with its pending question,
// so a reconnecting client can resume play.
func (h *QuizHandler) GetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	result, err := h.quizService.ActiveSession(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Answer godoc
// POST /api/v1/quiz/sessions/:session_id/answer
// Grades an answer to the session's pending question and advances the session.
func (h *QuizHandler) Answer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	outcome, err := h.quizService.Answer(c.Request.Context(), claims.UserID, sessionID, questionID, req.Answer)
	if err != nil {
		h.failQuiz(c, err)
		return
	}

	response.Success(c, http.StatusOK, outcome)
}

// Finish godoc
// POST /api/v1/quiz/sessions/:session_id/finish
// Finishes the session and returns its final result. Finishing an already
// finished session returns the same result again.
func (h *QuizHandler) Finish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.quizService.Finish(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.failQuiz(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Abort godoc
// DELETE /api/v1/quiz/sessions/:session_id
// Abandons an active session. Aborted sessions carry no score and are
// excluded from progress aggregation.
func (h *QuizHandler) Abort(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.quizService.Abort(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		h.failQuiz(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// Progress godoc
// GET /api/v1/quiz/progress
// Returns aggregated statistics over the caller's finished sessions.
func (h *QuizHandler) Progress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	summary, err := h.quizService.Progress(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// Leaderboard godoc
// GET /api/v1/quiz/leaderboard?limit=10
// Returns the top players ranked by their best score.
func (h *QuizHandler) Leaderboard(c *gin.Context) {
	limit := defaultLeaderboardSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		limit = n
	}

	entries, err := h.quizService.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": entries})
}

// failQuiz maps engine errors onto the API error taxonomy.
func (h *QuizHandler) failQuiz(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, service.ErrQuestionMismatch):
		response.Fail(c, http.StatusConflict, response.ErrQuestionMismatch)
	case errors.Is(err, service.ErrConflict):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
