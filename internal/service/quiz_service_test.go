package service

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/syziel1/zrozoom-quiz-backend/internal/generator"
	"github.com/syziel1/zrozoom-quiz-backend/internal/model"
	"github.com/syziel1/zrozoom-quiz-backend/internal/repository"
)

// fakeSessionStore is an in-memory SessionStore. It hands out deep copies
// so the conditional-update semantics match a real database.
type fakeSessionStore struct {
	sessions map[uuid.UUID]*model.QuizSession
	names    map[int]string
}

func newFakeStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*model.QuizSession),
		names:    map[int]string{1: "Ala", 2: "Ola"},
	}
}

func cloneSession(s *model.QuizSession) *model.QuizSession {
	c := *s
	if s.Pending != nil {
		q := *s.Pending
		q.Options = append([]string(nil), s.Pending.Options...)
		c.Pending = &q
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.QuizSession) error {
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeSessionStore) GetByIDAndUser(_ context.Context, id uuid.UUID, userID int) (*model.QuizSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (f *fakeSessionStore) GetActiveByUser(_ context.Context, userID int) (*model.QuizSession, error) {
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == model.SessionStatusActive {
			return cloneSession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSessionStore) UpdateIfStatus(_ context.Context, s *model.QuizSession, expected model.SessionStatus) error {
	stored, ok := f.sessions[s.ID]
	if !ok || stored.UserID != s.UserID || stored.Status != expected {
		return repository.ErrStale
	}
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeSessionStore) ListFinishedByUser(_ context.Context, userID int) ([]model.QuizSession, error) {
	var out []model.QuizSession
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == model.SessionStatusFinished {
			out = append(out, *cloneSession(s))
		}
	}
	return out, nil
}

func (f *fakeSessionStore) TopScores(_ context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	best := map[int]*repository.LeaderboardEntry{}
	for _, s := range f.sessions {
		if s.Status != model.SessionStatusFinished || s.Score == nil {
			continue
		}
		e, ok := best[s.UserID]
		if !ok {
			e = &repository.LeaderboardEntry{Name: f.names[s.UserID]}
			best[s.UserID] = e
		}
		e.GamesPlayed++
		if *s.Score > e.BestScore {
			e.BestScore = *s.Score
		}
	}
	entries := []repository.LeaderboardEntry{}
	for _, e := range best {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].BestScore > entries[j].BestScore })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// deadRedis returns a client pointing nowhere. Pointer caching is
// best-effort, so every engine path must survive cache failures.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            "127.0.0.1:1",
		DialTimeout:     10 * time.Millisecond,
		MaxRetries:      -1,
		PoolTimeout:     10 * time.Millisecond,
		ConnMaxIdleTime: time.Millisecond,
	})
}

func newTestEngine(store SessionStore) *QuizService {
	gen := generator.New(rand.New(rand.NewSource(7)))
	return NewQuizService(store, gen, deadRedis(), zerolog.Nop())
}

// answerPending submits an answer for the current pending question, either
// the correct one or a guaranteed-wrong option.
func answerPending(t *testing.T, svc *QuizService, store *fakeSessionStore, userID int, sessionID uuid.UUID, correctly bool) *AnswerOutcome {
	t.Helper()
	pending := store.sessions[sessionID].Pending
	if pending == nil {
		t.Fatal("no pending question to answer")
	}
	answer := pending.CorrectAnswer
	if !correctly {
		answer = pending.CorrectAnswer + "1" // Never a valid option
	}
	out, err := svc.Answer(context.Background(), userID, sessionID, pending.ID, answer)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	return out
}

func TestStartIssuesFirstQuestion(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)

	res, err := svc.Start(context.Background(), 1, model.DifficultyEasy)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if res.Session.Status != model.SessionStatusActive {
		t.Errorf("status = %s, want ACTIVE", res.Session.Status)
	}
	if res.Session.CurrentIndex != 1 || res.Session.CorrectCount != 0 {
		t.Errorf("fresh session has index=%d correct=%d", res.Session.CurrentIndex, res.Session.CorrectCount)
	}
	if res.Session.TotalQuestions != model.TotalQuestionsPerSession {
		t.Errorf("total questions = %d, want %d", res.Session.TotalQuestions, model.TotalQuestionsPerSession)
	}
	if res.Question.Ordinal != 1 || len(res.Question.Options) != 4 {
		t.Errorf("first question ordinal=%d options=%d", res.Question.Ordinal, len(res.Question.Options))
	}
}

func TestStartRejectsUnknownDifficulty(t *testing.T) {
	svc := newTestEngine(newFakeStore())

	_, err := svc.Start(context.Background(), 1, model.Difficulty("BRUTAL"))
	if !errors.Is(err, ErrBadDifficulty) {
		t.Fatalf("err = %v, want ErrBadDifficulty", err)
	}
}

func TestFinishImmediatelyScoresZero(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyMedium)

	result, err := svc.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.CorrectAnswers != 0 || result.Score != 0 {
		t.Errorf("got correct=%d score=%d, want 0/0", result.CorrectAnswers, result.Score)
	}
	if store.sessions[res.Session.ID].Status != model.SessionStatusFinished {
		t.Errorf("session not FINISHED after early finish")
	}
}

func TestAllCorrectAnswersFullScore(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyHard)

	var last *AnswerOutcome
	for i := 0; i < model.TotalQuestionsPerSession; i++ {
		last = answerPending(t, svc, store, 1, res.Session.ID, true)
		if !last.Correct {
			t.Fatalf("question %d graded incorrect for the correct answer", i+1)
		}
	}

	if last.Session.Status != model.SessionStatusFinished {
		t.Errorf("status after 10th answer = %s, want FINISHED", last.Session.Status)
	}
	if last.NextQuestion != nil {
		t.Error("terminal answer outcome carries a next question")
	}
	if last.Session.CorrectCount != 10 {
		t.Errorf("correct count = %d, want 10", last.Session.CorrectCount)
	}

	result, err := svc.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if want := 100 * model.DifficultyHard.Weight(); result.Score != want {
		t.Errorf("score = %d, want %d", result.Score, want)
	}
}

func TestMixedAnswersScenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)

	pattern := []bool{true, false, true, true, false, true, true, true, false, true}
	for _, correct := range pattern {
		answerPending(t, svc, store, 1, res.Session.ID, correct)
	}

	result, err := svc.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.CorrectAnswers != 7 {
		t.Errorf("correct answers = %d, want 7", result.CorrectAnswers)
	}
	if result.Score != 70 {
		t.Errorf("score = %d, want 70", result.Score)
	}
}

func TestAnswerRevealsCorrectAnswer(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)

	res, _ := svc.Start(context.Background(), 1, model.DifficultyEasy)

	want := store.sessions[res.Session.ID].Pending.CorrectAnswer
	out := answerPending(t, svc, store, 1, res.Session.ID, false)

	if out.Correct {
		t.Error("wrong answer graded correct")
	}
	if out.CorrectAnswer != want {
		t.Errorf("revealed answer %q, want %q", out.CorrectAnswer, want)
	}
	if out.Session.CorrectCount != 0 || out.Session.CurrentIndex != 2 {
		t.Errorf("after wrong answer: correct=%d index=%d", out.Session.CorrectCount, out.Session.CurrentIndex)
	}
}

func TestAnswerQuestionMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)

	// Answer question 1 so its id becomes stale, then replay it.
	stale := store.sessions[res.Session.ID].Pending.ID
	answerPending(t, svc, store, 1, res.Session.ID, true)

	_, err := svc.Answer(ctx, 1, res.Session.ID, stale, "0")
	if !errors.Is(err, ErrQuestionMismatch) {
		t.Fatalf("err = %v, want ErrQuestionMismatch", err)
	}

	s := store.sessions[res.Session.ID]
	if s.CorrectCount != 1 || s.CurrentIndex != 2 {
		t.Errorf("mismatched answer mutated state: correct=%d index=%d", s.CorrectCount, s.CurrentIndex)
	}
}

func TestAnswerOnFinishedSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
	if _, err := svc.Finish(ctx, 1, res.Session.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	_, err := svc.Answer(ctx, 1, res.Session.ID, uuid.New(), "0")
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
}

func TestAnswerUnknownOrForeignSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	if _, err := svc.Answer(ctx, 1, uuid.New(), uuid.New(), "0"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: err = %v, want ErrSessionNotFound", err)
	}

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
	qid := store.sessions[res.Session.ID].Pending.ID
	if _, err := svc.Answer(ctx, 2, res.Session.ID, qid, "0"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestFinishIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
	answerPending(t, svc, store, 1, res.Session.ID, true)

	first, err := svc.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("first finish: %v", err)
	}
	second, err := svc.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}

	if first.Score != second.Score || !first.FinishedAt.Equal(second.FinishedAt) {
		t.Errorf("finish not idempotent: %+v vs %+v", first, second)
	}
}

func TestAbort(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
	answerPending(t, svc, store, 1, res.Session.ID, true)

	view, err := svc.Abort(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if view.Status != model.SessionStatusAborted {
		t.Errorf("status = %s, want ABORTED", view.Status)
	}
	if view.Score != nil {
		t.Error("aborted session has a score")
	}

	// Aborted sessions are invisible to progress.
	summary, err := svc.Progress(ctx, 1)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if summary.TotalGamesPlayed != 0 {
		t.Errorf("aborted session counted in progress: %+v", summary)
	}

	if _, err := svc.Finish(ctx, 1, res.Session.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("finish after abort: err = %v, want ErrSessionNotActive", err)
	}
}

func TestProgressAggregation(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	empty, err := svc.Progress(ctx, 1)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if empty.TotalGamesPlayed != 0 || empty.BestScore != 0 || empty.LastPlayedAt != nil {
		t.Errorf("empty progress = %+v, want zeroes", empty)
	}

	// Three finished sessions with 3, 7 and 10 correct answers on EASY.
	for _, corrects := range []int{3, 7, 10} {
		res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
		for i := 0; i < model.TotalQuestionsPerSession; i++ {
			answerPending(t, svc, store, 1, res.Session.ID, i < corrects)
		}
	}

	summary, err := svc.Progress(ctx, 1)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if summary.TotalGamesPlayed != 3 {
		t.Errorf("games played = %d, want 3", summary.TotalGamesPlayed)
	}
	if summary.TotalCorrectAnswers != 20 {
		t.Errorf("total correct = %d, want 20", summary.TotalCorrectAnswers)
	}
	if summary.TotalQuestions != 30 {
		t.Errorf("total questions = %d, want 30", summary.TotalQuestions)
	}
	if summary.BestScore != 100 {
		t.Errorf("best score = %d, want 100", summary.BestScore)
	}
	// round(mean(30, 70, 100)) = 67
	if summary.AverageScore != 67 {
		t.Errorf("average score = %d, want 67", summary.AverageScore)
	}
	if summary.LastPlayedAt == nil {
		t.Error("last played is nil after finished sessions")
	}
}

func TestLeaderboardRanksBestScores(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	// User 1 scores 100 on EASY; user 2 scores 200 on MEDIUM.
	for user, d := range map[int]model.Difficulty{1: model.DifficultyEasy, 2: model.DifficultyMedium} {
		res, _ := svc.Start(ctx, user, d)
		for i := 0; i < model.TotalQuestionsPerSession; i++ {
			answerPending(t, svc, store, user, res.Session.ID, true)
		}
	}

	entries, err := svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "Ola" || entries[0].BestScore != 200 || entries[0].Rank != 1 {
		t.Errorf("top entry = %+v", entries[0])
	}
}

func TestConcurrentUpdateConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	res, _ := svc.Start(ctx, 1, model.DifficultyEasy)
	qid := store.sessions[res.Session.ID].Pending.ID
	answer := store.sessions[res.Session.ID].Pending.CorrectAnswer

	// Simulate a concurrent transition between the read and the write.
	store.sessions[res.Session.ID].Status = model.SessionStatusAborted

	_, err := svc.Answer(ctx, 1, res.Session.ID, qid, answer)
	if !errors.Is(err, ErrSessionNotActive) && !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want not-active or conflict", err)
	}
}

func TestActiveSessionFallsBackToStore(t *testing.T) {
	store := newFakeStore()
	svc := newTestEngine(store)
	ctx := context.Background()

	if _, err := svc.ActiveSession(ctx, 1); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}

	res, _ := svc.Start(ctx, 1, model.DifficultyMedium)
	answerPending(t, svc, store, 1, res.Session.ID, true)

	// Redis is dead in tests, so this exercises the store fallback.
	resumed, err := svc.ActiveSession(ctx, 1)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if resumed.Session.ID != res.Session.ID {
		t.Errorf("resumed session %s, want %s", resumed.Session.ID, res.Session.ID)
	}
	if resumed.Question.Ordinal != 2 {
		t.Errorf("resumed ordinal = %d, want 2", resumed.Question.Ordinal)
	}
}
