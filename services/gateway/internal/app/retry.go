package app

import (
	"context"
	"errors"
	"time"

	"llmgateway/internal/util"
	"llmgateway/pkg/store"
)

const persistAttemptTimeout = 5 * time.Second

// persist runs write until it succeeds, backing off exponentially between
// attempts. Request cancellation does not stop it: the LLM work it records
// has already been paid for. Record ids are fixed before the first attempt,
// so a duplicate key on a retry means an earlier attempt landed.
func (a *App) persist(ctx context.Context, record string, write func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	logger := util.LoggerFromContext(ctx)
	delay := a.persistBackoff
	var err error
	attempt := 0
	for attempt < a.persistAttempts {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, persistAttemptTimeout)
		err = write(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrDuplicate) {
			if attempt > 1 {
				logger.Info("persist confirmed by duplicate key", "record", record, "attempt", attempt)
				return nil
			}
			break
		}
		if attempt == a.persistAttempts {
			break
		}
		a.metrics.PersistRetry(record)
		logger.Warn("persist retry", "record", record, "attempt", attempt, "delay", delay.String(), "err", err)
		<-a.sleep(delay)
		delay *= 2
		if delay > a.persistMaxDelay {
			delay = a.persistMaxDelay
		}
	}
	logger.Error("persist failed", "record", record, "attempts", attempt, "err", err)
	return &PersistError{Record: record, Attempts: attempt, Err: err}
}
