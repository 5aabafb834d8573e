package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/syziel1/zrozoom-quiz-backend/internal/config"
	"github.com/syziel1/zrozoom-quiz-backend/internal/repository"
)

const reapInterval = time.Minute

// ReaperWorker aborts quiz sessions that have been idle too long, so
// abandoned games do not stay ACTIVE forever.
type ReaperWorker struct {
	sessions    *repository.SessionRepository
	rdb         *redis.Client
	idleTimeout time.Duration
	log         zerolog.Logger
}

// NewReaperWorker creates a new ReaperWorker.
func NewReaperWorker(sessions *repository.SessionRepository, rdb *redis.Client, idleTimeout time.Duration, log zerolog.Logger) *ReaperWorker {
	return &ReaperWorker{
		sessions:    sessions,
		rdb:         rdb,
		idleTimeout: idleTimeout,
		log:         log.With().Str("component", "reaper_worker").Logger(),
	}
}

// Start begins the periodic reap loop. Call in a goroutine.
func (w *ReaperWorker) Start(ctx context.Context) {
	w.log.Info().Dur("idle_timeout", w.idleTimeout).Msg("Worker started")

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.reap(ctx)
		}
	}
}

func (w *ReaperWorker) reap(ctx context.Context) {
	cutoff := time.Now().Add(-w.idleTimeout)

	aborted, err := w.sessions.AbortIdleBefore(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("Reap pass failed")
		return
	}
	if len(aborted) == 0 {
		return
	}

	// Drop the active-session pointers of every reaped user in one trip.
	pipe := w.rdb.Pipeline()
	for _, s := range aborted {
		pipe.Del(ctx, config.CacheKey.UserActiveQuizKey(s.UserID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Active pointer cleanup failed")
	}

	w.log.Info().Int("count", len(aborted)).Msg("Aborted idle sessions")
}
