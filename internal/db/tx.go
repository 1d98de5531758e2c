package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

var (
	ErrTransactionBegin   = errs.New("failed to begin transaction")
	ErrTransactionCommit  = errs.New("failed to commit transaction")
	ErrMaxRetriesExceeded = errs.New("transaction failed after max retries")
)

// TxRunner opens transactions on a pool and retries serialization failures
// and deadlocks.
type TxRunner struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     zerolog.Logger
}

func NewTxRunner(pool *pgxpool.Pool, maxRetries int, logger zerolog.Logger) *TxRunner {
	return &TxRunner{pool: pool, maxRetries: maxRetries, logger: logger}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == r.maxRetries {
			r.logger.Error().Err(err).Int("attempts", attempt+1).Msg("transaction failed after max retries")
			return errs.Mark(err, ErrMaxRetriesExceeded)
		}

		wait := time.Duration(attempt+1) * 50 * time.Millisecond
		r.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("wait", wait).Msg("retrying transaction")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return ErrMaxRetriesExceeded
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errs.Mark(err, ErrTransactionBegin)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Mark(err, ErrTransactionCommit)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}
