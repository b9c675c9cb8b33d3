package retrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/retrainer/internal/config"
	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// PollPolicy bounds how long WaitForCompletion waits for a job.
// At least one of MaxAttempts or Timeout should be set.
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	// MaxAttempts caps the number of status checks. Zero means no cap.
	MaxAttempts int
	// Timeout caps the total wait. Zero means no cap.
	Timeout     time.Duration
	Exponential bool
}

// PolicyFromConfig builds a PollPolicy from the poll settings.
func PolicyFromConfig(cfg config.PollConfig) PollPolicy {
	return PollPolicy{
		Interval:    cfg.Interval,
		MaxInterval: cfg.MaxInterval,
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     cfg.Timeout,
		Exponential: cfg.Backoff == "exponential",
	}
}

func (p PollPolicy) backOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Interval
		if p.MaxInterval > 0 {
			eb.MaxInterval = p.MaxInterval
		}
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Interval)
	}

	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	b.Reset()
	return b
}

// WaitForCompletion polls the job until it reaches a terminal state and returns that state.
// onStatus, if non-nil, sees every observed status. Status check failures are logged and
// count as attempts. Returns ErrPollTimeout when the policy's bound fires first.
func (s *Service) WaitForCompletion(ctx context.Context, id models.JobID, onStatus func(models.JobStatus)) (models.JobStatus, error) {
	st, err := s.waitForStatus(ctx, id, onStatus)
	if st == nil {
		return models.StatusNotStarted, err
	}
	return st.StatusCode, err
}

func (s *Service) waitForStatus(ctx context.Context, id models.JobID, onStatus func(models.JobStatus)) (*models.BatchStatus, error) {
	pollCtx := ctx
	if s.policy.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, s.policy.Timeout)
		defer cancel()
	}

	b := backoff.WithContext(s.policy.backOff(), pollCtx)

	var last *models.BatchStatus
	attempts := 0
	for {
		attempts++
		st, err := s.jobs.Status(pollCtx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			s.metrics.RecordPoll("error")
			slog.Warn("job status check failed", "job_id", id, "attempt", attempts, "error", err)
		default:
			last = st
			s.metrics.RecordPoll(st.StatusCode.String())
			if onStatus != nil {
				onStatus(st.StatusCode)
			}
			if st.StatusCode.IsTerminal() {
				return st, nil
			}
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			break
		}

		timer := time.NewTimer(next)
		select {
		case <-pollCtx.Done():
			timer.Stop()
		case <-timer.C:
			continue
		}
		break
	}

	if err := ctx.Err(); err != nil {
		return last, err
	}

	lastState := "unknown"
	if last != nil {
		lastState = last.StatusCode.String()
	}
	return last, fmt.Errorf("%w: job %s still %s after %d status checks", ErrPollTimeout, id, lastState, attempts)
}

// IsPollTimeout reports whether err came from an exhausted poll policy.
func IsPollTimeout(err error) bool {
	return errors.Is(err, ErrPollTimeout)
}
