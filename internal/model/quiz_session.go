package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states.
// ACTIVE is the sole initial state; FINISHED and ABORTED are terminal.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusFinished SessionStatus = "FINISHED"
	SessionStatusAborted  SessionStatus = "ABORTED"
)

// TotalQuestionsPerSession is fixed for every session.
const TotalQuestionsPerSession = 10

// QuizSession represents one quiz attempt by a single user at a fixed
// difficulty. Pending is non-nil iff Status is ACTIVE.
type QuizSession struct {
	ID             uuid.UUID
	UserID         int
	Difficulty     Difficulty
	Status         SessionStatus
	TotalQuestions int
	// CurrentIndex is the 1-based ordinal of the pending question.
	CurrentIndex int
	CorrectCount int
	Pending      *Question
	Score        *int
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

// SessionView is the caller-facing projection of a session. It never
// carries the pending question's answer.
type SessionView struct {
	ID             uuid.UUID     `json:"id"`
	Difficulty     Difficulty    `json:"difficulty"`
	Status         SessionStatus `json:"status"`
	TotalQuestions int           `json:"total_questions"`
	CurrentIndex   int           `json:"current_index"`
	CorrectCount   int           `json:"correct_count"`
	Score          *int          `json:"score,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// View returns the public projection of the session.
func (s *QuizSession) View() SessionView {
	return SessionView{
		ID:             s.ID,
		Difficulty:     s.Difficulty,
		Status:         s.Status,
		TotalQuestions: s.TotalQuestions,
		CurrentIndex:   s.CurrentIndex,
		CorrectCount:   s.CorrectCount,
		Score:          s.Score,
		CreatedAt:      s.CreatedAt,
		FinishedAt:     s.FinishedAt,
	}
}

// StartSessionRequest is the payload for starting a new quiz session.
type StartSessionRequest struct {
	Difficulty Difficulty `json:"difficulty" binding:"required,oneof=EASY MEDIUM HARD"`
}

// AnswerRequest is the payload for answering the pending question.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     string `json:"answer" binding:"required,max=32"`
}
