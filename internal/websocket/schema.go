package websocket

import (
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
	"github.com/syziel1/zrozoom-quiz-backend/internal/service"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFinish Action = "finish"
	ActionPing   Action = "ping"
)

// RequestPayload is the single client message shape. QuestionID and
// Answer are only set for the answer action.
type RequestPayload struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventQuestion Event = "question"
	EventGraded   Event = "graded"
	EventFinished Event = "finished"
	EventPong     Event = "pong"
)

// QuestionResponse carries the current question, sent on connect.
type QuestionResponse struct {
	Event    Event               `json:"event"`
	Question *model.QuestionView `json:"question"`
}

// GradedResponse reports the outcome of a single answer. NextQuestion
// is nil when the session has just completed.
type GradedResponse struct {
	Event         Event               `json:"event"`
	Correct       bool                `json:"correct"`
	CorrectAnswer string              `json:"correct_answer"`
	NextQuestion  *model.QuestionView `json:"next_question,omitempty"`
}

// FinishedResponse carries the final session result.
type FinishedResponse struct {
	Event  Event                `json:"event"`
	Result *service.SessionResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
