package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
)

// storedQuestion is the jsonb shape of the pending question. The session
// row is the only place the correct answer is persisted.
type storedQuestion struct {
	ID      uuid.UUID `json:"id"`
	Prompt  string    `json:"prompt"`
	Answer  string    `json:"answer"`
	Options []string  `json:"options"`
}

// LeaderboardEntry is one row of the best-score ranking.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	BestScore   int    `json:"best_score"`
	GamesPlayed int    `json:"games_played"`
}

// SessionRepository handles quiz session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, difficulty, status, total_questions,
	current_index, correct_count, pending_question, score, created_at, finished_at`

// Create inserts a new quiz session.
func (r *SessionRepository) Create(ctx context.Context, s *model.QuizSession) error {
	pending, err := marshalPending(s.Pending)
	if err != nil {
		return err
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions
		   (id, user_id, difficulty, status, total_questions, current_index, correct_count, pending_question)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		s.ID, s.UserID, s.Difficulty, s.Status, s.TotalQuestions, s.CurrentIndex, s.CorrectCount, pending,
	).Scan(&s.CreatedAt)
}

// GetByIDAndUser retrieves a session owned by the given user.
func (r *SessionRepository) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID int) (*model.QuizSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE id = $1 AND user_id = $2`, id, userID)
	return scanSession(row)
}

// GetActiveByUser retrieves the user's single ACTIVE session, if any.
func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID int) (*model.QuizSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1`, userID, model.SessionStatusActive)
	return scanSession(row)
}

// UpdateIfStatus persists the session's mutable fields, but only if the
// stored row is still in the expected status. A zero-row update surfaces
// as ErrStale so the engine never overwrites a concurrent transition.
func (r *SessionRepository) UpdateIfStatus(ctx context.Context, s *model.QuizSession, expected model.SessionStatus) error {
	pending, err := marshalPending(s.Pending)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1,
		     current_index = $2,
		     correct_count = $3,
		     pending_question = $4,
		     score = $5,
		     finished_at = $6,
		     updated_at = NOW()
		 WHERE id = $7 AND user_id = $8 AND status = $9`,
		s.Status, s.CurrentIndex, s.CorrectCount, pending, s.Score, s.FinishedAt,
		s.ID, s.UserID, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// ListFinishedByUser retrieves all FINISHED sessions for a user, newest first.
func (r *SessionRepository) ListFinishedByUser(ctx context.Context, userID int) ([]model.QuizSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE user_id = $1 AND status = $2
		 ORDER BY finished_at DESC`, userID, model.SessionStatusFinished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.QuizSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// TopScores ranks users by their best finished-session score.
func (r *SessionRepository) TopScores(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.name, MAX(s.score) AS best_score, COUNT(s.id) AS games_played
		 FROM quiz_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.status = $1 AND s.score IS NOT NULL
		 GROUP BY u.id, u.name
		 ORDER BY best_score DESC, games_played DESC, u.name ASC
		 LIMIT $2`, model.SessionStatusFinished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.BestScore, &e.GamesPlayed); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalPending(q *model.Question) ([]byte, error) {
	if q == nil {
		return nil, nil
	}
	raw, err := json.Marshal(storedQuestion{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Answer:  q.CorrectAnswer,
		Options: q.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal pending question: %w", err)
	}
	return raw, nil
}

func scanSession(row pgx.Row) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	var pending []byte
	err := row.Scan(&s.ID, &s.UserID, &s.Difficulty, &s.Status, &s.TotalQuestions,
		&s.CurrentIndex, &s.CorrectCount, &pending, &s.Score, &s.CreatedAt, &s.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(pending) > 0 {
		var sq storedQuestion
		if err := json.Unmarshal(pending, &sq); err != nil {
			return nil, fmt.Errorf("unmarshal pending question: %w", err)
		}
		s.Pending = &model.Question{
			ID:            sq.ID,
			Prompt:        sq.Prompt,
			CorrectAnswer: sq.Answer,
			Options:       sq.Options,
		}
	}
	return s, nil
}

// AbortedSession identifies a session expired by the reaper.
type AbortedSession struct {
	ID     uuid.UUID
	UserID int
}

// AbortIdleBefore transitions ACTIVE sessions without activity since the
// cutoff into ABORTED and returns what it expired.
func (r *SessionRepository) AbortIdleBefore(ctx context.Context, cutoff time.Time) ([]AbortedSession, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, pending_question = NULL, finished_at = NOW(), updated_at = NOW()
		 WHERE status = $2 AND updated_at < $3
		 RETURNING id, user_id`,
		model.SessionStatusAborted, model.SessionStatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aborted []AbortedSession
	for rows.Next() {
		var a AbortedSession
		if err := rows.Scan(&a.ID, &a.UserID); err != nil {
			return nil, err
		}
		aborted = append(aborted, a)
	}
	return aborted, rows.Err()
}
