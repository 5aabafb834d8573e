package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/syziel1/zrozoom-quiz-backend/internal/config"
	"github.com/syziel1/zrozoom-quiz-backend/internal/generator"
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
	"github.com/syziel1/zrozoom-quiz-backend/internal/repository"
)

// Engine errors, matched with errors.Is at the handler boundary.
var (
	ErrSessionNotFound  = errors.New("quiz session not found")
	ErrSessionNotActive = errors.New("quiz session is not active")
	ErrQuestionMismatch = errors.New("answer does not match the pending question")
	ErrNoActiveSession  = errors.New("no active quiz session")
	ErrConflict         = errors.New("quiz session was modified concurrently")
	ErrBadDifficulty    = errors.New("unknown difficulty level")
)

// SessionStore is the narrow persistence contract the quiz engine needs.
// Implemented by repository.SessionRepository; tests supply an in-memory fake.
type SessionStore interface {
	Create(ctx context.Context, s *model.QuizSession) error
	GetByIDAndUser(ctx context.Context, id uuid.UUID, userID int) (*model.QuizSession, error)
	GetActiveByUser(ctx context.Context, userID int) (*model.QuizSession, error)
	UpdateIfStatus(ctx context.Context, s *model.QuizSession, expected model.SessionStatus) error
	ListFinishedByUser(ctx context.Context, userID int) ([]model.QuizSession, error)
	TopScores(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error)
}

// StartResult is the outcome of starting a session.
type StartResult struct {
	Session  model.SessionView  `json:"session"`
	Question model.QuestionView `json:"question"`
}

// AnswerOutcome is the graded outcome of one answer.
type AnswerOutcome struct {
	Correct       bool                `json:"correct"`
	CorrectAnswer string              `json:"correct_answer"`
	Session       model.SessionView   `json:"session"`
	NextQuestion  *model.QuestionView `json:"next_question,omitempty"`
}

// SessionResult is the final summary of a finished session.
type SessionResult struct {
	SessionID       uuid.UUID        `json:"session_id"`
	CorrectAnswers  int              `json:"correct_answers"`
	TotalQuestions  int              `json:"total_questions"`
	Score           int              `json:"score"`
	DurationSeconds int              `json:"duration_seconds"`
	Difficulty      model.Difficulty `json:"difficulty"`
	FinishedAt      time.Time        `json:"finished_at"`
}

// ProgressSummary aggregates a user's finished sessions.
type ProgressSummary struct {
	TotalGamesPlayed    int        `json:"total_games_played"`
	TotalCorrectAnswers int        `json:"total_correct_answers"`
	TotalQuestions      int        `json:"total_questions"`
	AverageScore        int        `json:"average_score"`
	BestScore           int        `json:"best_score"`
	LastPlayedAt        *time.Time `json:"last_played_at"`
}

// QuizService is the session engine: it orchestrates state transitions
// using the question generator and the session store, and derives progress
// summaries. All operations are scoped to the calling user.
type QuizService struct {
	store SessionStore
	gen   *generator.Generator
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(store SessionStore, gen *generator.Generator, rdb *redis.Client, log zerolog.Logger) *QuizService {
	return &QuizService{
		store: store,
		gen:   gen,
		rdb:   rdb,
		log:   log.With().Str("component", "quiz_service").Logger(),
	}
}

// Start creates a new ACTIVE session with its first question.
func (s *QuizService) Start(ctx context.Context, userID int, difficulty model.Difficulty) (*StartResult, error) {
	// HTTP binding already validates this; the engine guards it too for
	// callers that bypass the handlers.
	if !difficulty.Valid() {
		return nil, ErrBadDifficulty
	}

	first := s.gen.Generate(difficulty)

	session := &model.QuizSession{
		ID:             uuid.New(),
		UserID:         userID,
		Difficulty:     difficulty,
		Status:         model.SessionStatusActive,
		TotalQuestions: model.TotalQuestionsPerSession,
		CurrentIndex:   1,
		CorrectCount:   0,
		Pending:        &first,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.cacheActivePointer(ctx, userID, session.ID)

	return &StartResult{
		Session:  session.View(),
		Question: first.View(1),
	}, nil
}

// Answer grades the answer against the session's pending question, advances
// the session and issues the next question. Answering the last question
// completes the session.
func (s *QuizService) Answer(ctx context.Context, userID int, sessionID, questionID uuid.UUID, answer string) (*AnswerOutcome, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusActive || session.Pending == nil {
		return nil, ErrSessionNotActive
	}
	// Guards against stale or replayed submissions.
	if session.Pending.ID != questionID {
		return nil, ErrQuestionMismatch
	}

	correctAnswer := session.Pending.CorrectAnswer
	correct := answer == correctAnswer
	if correct {
		session.CorrectCount++
	}

	var nextView *model.QuestionView
	nextIndex := session.CurrentIndex + 1
	if nextIndex > session.TotalQuestions {
		s.complete(session, time.Now())
	} else {
		next := s.gen.Generate(session.Difficulty)
		session.Pending = &next
		session.CurrentIndex = nextIndex
		v := next.View(nextIndex)
		nextView = &v
	}

	if err := s.persistFrom(ctx, session, model.SessionStatusActive); err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusActive {
		s.clearActivePointer(ctx, userID)
	}

	return &AnswerOutcome{
		Correct:       correct,
		CorrectAnswer: correctAnswer,
		Session:       session.View(),
		NextQuestion:  nextView,
	}, nil
}

// Finish completes a session and returns its final result. It is
// idempotent: finishing an already FINISHED session re-reads the stored
// score. An ACTIVE session may be finished early; it is scored with the
// answers given so far over the full question count.
func (s *QuizService) Finish(ctx context.Context, userID int, sessionID uuid.UUID) (*SessionResult, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusAborted:
		return nil, ErrSessionNotActive

	case model.SessionStatusActive:
		s.complete(session, time.Now())
		if err := s.persistFrom(ctx, session, model.SessionStatusActive); err != nil {
			return nil, err
		}
		s.clearActivePointer(ctx, userID)

	case model.SessionStatusFinished:
		// Older rows may predate score persistence; backfill once.
		if session.Score == nil || session.FinishedAt == nil {
			s.complete(session, time.Now())
			if err := s.persistFrom(ctx, session, model.SessionStatusFinished); err != nil {
				return nil, err
			}
		}
	}

	duration := int(math.Round(session.FinishedAt.Sub(session.CreatedAt).Seconds()))
	return &SessionResult{
		SessionID:       session.ID,
		CorrectAnswers:  session.CorrectCount,
		TotalQuestions:  session.TotalQuestions,
		Score:           *session.Score,
		DurationSeconds: duration,
		Difficulty:      session.Difficulty,
		FinishedAt:      *session.FinishedAt,
	}, nil
}

// Abort abandons an ACTIVE session: terminal, unscored, excluded from
// progress aggregates. Aborting an already ABORTED session is a no-op.
func (s *QuizService) Abort(ctx context.Context, userID int, sessionID uuid.UUID) (*model.SessionView, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusFinished:
		return nil, ErrSessionNotActive
	case model.SessionStatusActive:
		now := time.Now()
		session.Status = model.SessionStatusAborted
		session.Pending = nil
		session.FinishedAt = &now
		if err := s.persistFrom(ctx, session, model.SessionStatusActive); err != nil {
			return nil, err
		}
		s.clearActivePointer(ctx, userID)
	}

	view := session.View()
	return &view, nil
}

// ActiveSession resolves the caller's current ACTIVE session so a reloaded
// client can resume. The Redis pointer is tried first; on a miss (or any
// cache error) the store is the source of truth and the pointer self-heals.
func (s *QuizService) ActiveSession(ctx context.Context, userID int) (*StartResult, error) {
	pointerKey := config.CacheKey.UserActiveQuizKey(userID)

	if raw, err := s.rdb.Get(ctx, pointerKey).Result(); err == nil {
		if id, parseErr := uuid.Parse(raw); parseErr == nil {
			session, getErr := s.store.GetByIDAndUser(ctx, id, userID)
			if getErr == nil && session.Status == model.SessionStatusActive {
				return resumeResult(session), nil
			}
		}
		// Stale pointer (session gone or terminal): drop it and fall through.
		_ = s.rdb.Del(ctx, pointerKey).Err()
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Active-session cache read failed")
	}

	session, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}

	s.cacheActivePointer(ctx, userID, session.ID)
	return resumeResult(session), nil
}

// Progress aggregates the caller's FINISHED sessions. With no finished
// sessions every counter is zero and LastPlayedAt is null.
func (s *QuizService) Progress(ctx context.Context, userID int) (*ProgressSummary, error) {
	sessions, err := s.store.ListFinishedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list finished sessions: %w", err)
	}

	summary := &ProgressSummary{}
	if len(sessions) == 0 {
		return summary, nil
	}

	scoreSum := 0
	for i := range sessions {
		sess := &sessions[i]
		summary.TotalGamesPlayed++
		summary.TotalCorrectAnswers += sess.CorrectCount
		summary.TotalQuestions += sess.TotalQuestions

		score := 0
		if sess.Score != nil {
			score = *sess.Score
		}
		scoreSum += score
		if score > summary.BestScore {
			summary.BestScore = score
		}
		if sess.FinishedAt != nil &&
			(summary.LastPlayedAt == nil || sess.FinishedAt.After(*summary.LastPlayedAt)) {
			summary.LastPlayedAt = sess.FinishedAt
		}
	}
	summary.AverageScore = int(math.Round(float64(scoreSum) / float64(summary.TotalGamesPlayed)))

	return summary, nil
}

// Leaderboard ranks users by best finished-session score.
func (s *QuizService) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	return s.store.TopScores(ctx, limit)
}

// complete transitions the session to FINISHED and computes its score.
func (s *QuizService) complete(session *model.QuizSession, now time.Time) {
	session.Status = model.SessionStatusFinished
	session.Pending = nil
	if session.FinishedAt == nil {
		session.FinishedAt = &now
	}
	score := computeScore(session.CorrectCount, session.TotalQuestions, session.Difficulty)
	session.Score = &score
}

func (s *QuizService) loadOwned(ctx context.Context, sessionID uuid.UUID, userID int) (*model.QuizSession, error) {
	session, err := s.store.GetByIDAndUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *QuizService) persistFrom(ctx context.Context, session *model.QuizSession, expected model.SessionStatus) error {
	if err := s.store.UpdateIfStatus(ctx, session, expected); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return ErrConflict
		}
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// cacheActivePointer is best-effort: the store remains the source of truth
// and ActiveSession falls back to it on any cache miss.
func (s *QuizService) cacheActivePointer(ctx context.Context, userID int, sessionID uuid.UUID) {
	key := config.CacheKey.UserActiveQuizKey(userID)
	if err := s.rdb.Set(ctx, key, sessionID.String(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to cache active session pointer")
	}
}

func (s *QuizService) clearActivePointer(ctx context.Context, userID int) {
	key := config.CacheKey.UserActiveQuizKey(userID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to clear active session pointer")
	}
}

func resumeResult(session *model.QuizSession) *StartResult {
	return &StartResult{
		Session:  session.View(),
		Question: session.Pending.View(session.CurrentIndex),
	}
}

func computeScore(correct, total int, d model.Difficulty) int {
	return int(math.Round(float64(correct) / float64(total) * 100 * float64(d.Weight())))
}
