package model

import (
	"github.com/google/uuid"
)

// Question is a single issued arithmetic question. It is owned by the
// session that issued it and discarded once superseded. CorrectAnswer is
// never serialized into API responses; grading reveals it per answer.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"prompt"`
	CorrectAnswer string    `json:"-"`
	Options       []string  `json:"options"`
}

// QuestionView is the caller-facing shape of a pending question.
type QuestionView struct {
	ID      uuid.UUID `json:"id"`
	Prompt  string    `json:"prompt"`
	Options []string  `json:"options"`
	Ordinal int       `json:"ordinal"`
}

// View returns the public projection of the question at the given 1-based
// ordinal within its session.
func (q *Question) View(ordinal int) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: q.Options,
		Ordinal: ordinal,
	}
}
