// Package jobs drives remote asynchronous bulk jobs to completion.
//
// A submitted job is polled at a fixed interval until the remote system
// reports a terminal status or one of two independent budgets is exhausted:
// the queue budget, anchored at the start of polling, and the execution
// budget, anchored at the first in-progress observation. The anchor is set
// at most once per polling session, so the execution budget measures total
// running time and tolerates transient status flaps back to a queued code.
package jobs

import (
	"context"
	"time"

	"analytics-mcp-server/internal/types"
)

// StatusFunc queries the remote system for a job's current status code.
// Errors from the query are hard failures and propagate to the caller
// unclassified.
type StatusFunc func(ctx context.Context, jobID string) (string, error)

// StatusMessages supplies the user-facing message per failure class, so
// callers can word timeouts differently for SQL queries and dashboard
// exports. Empty fields fall back to generic wording.
type StatusMessages struct {
	Error            string
	QueueTimeout     string
	ExecutionTimeout string
}

const (
	defaultErrorMsg            = "Some internal error occurred. Please try again later."
	defaultQueueTimeoutMsg     = "Job accepted, but queue processing is slow. Please try again later."
	defaultExecutionTimeoutMsg = "Job is taking too long to execute. Please try again later."
)

func (m StatusMessages) errorMsg() string {
	if m.Error != "" {
		return m.Error
	}
	return defaultErrorMsg
}

func (m StatusMessages) queueTimeoutMsg() string {
	if m.QueueTimeout != "" {
		return m.QueueTimeout
	}
	return defaultQueueTimeoutMsg
}

func (m StatusMessages) executionTimeoutMsg() string {
	if m.ExecutionTimeout != "" {
		return m.ExecutionTimeout
	}
	return defaultExecutionTimeoutMsg
}

// Poller waits on remote bulk jobs. The zero value is not usable; construct
// with New. Clock and sleep are injectable so timeout behavior is testable
// without real waiting.
type Poller struct {
	interval         time.Duration
	queueTimeout     time.Duration
	executionTimeout time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option overrides a Poller dependency or budget.
type Option func(*Poller)

// WithInterval sets the delay between consecutive status queries.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithQueueTimeout sets the maximum time a job may stay unstarted.
func WithQueueTimeout(d time.Duration) Option {
	return func(p *Poller) { p.queueTimeout = d }
}

// WithExecutionTimeout sets the maximum total time a job may spend running.
func WithExecutionTimeout(d time.Duration) Option {
	return func(p *Poller) { p.executionTimeout = d }
}

// WithClock replaces the wall clock and sleep function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		p.now = now
		p.sleep = sleep
	}
}

// New constructs a Poller with the default budgets: 2s interval, 30s queue
// timeout, 60s execution timeout.
func New(opts ...Option) *Poller {
	p := &Poller{
		interval:         2 * time.Second,
		queueTimeout:     30 * time.Second,
		executionTimeout: 60 * time.Second,
		now:              time.Now,
		sleep:            sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait polls jobID until a terminal outcome or a budget is exhausted.
//
// It returns ("", nil) when the job completed and the payload may be
// fetched, or a non-empty message identifying the failure class (remote
// error, queue timeout, execution timeout) taken from msgs. A non-nil error
// is returned only when the status query itself fails or the context is
// canceled; such failures are never classified.
//
// Status queries are strictly sequential. Unrecognized status codes are
// tolerated: the loop continues without advancing either timeout anchor,
// which deliberately accepts that a persistently unrecognized code can keep
// a session alive indefinitely.
func (p *Poller) Wait(ctx context.Context, status StatusFunc, jobID string, msgs StatusMessages) (string, error) {
	submittedAt := p.now()
	var runningSince time.Time

	for {
		code, err := status(ctx, jobID)
		if err != nil {
			return "", err
		}
		now := p.now()

		switch code {
		case types.JobCompleted:
			return "", nil
		case types.JobError:
			return msgs.errorMsg(), nil
		case types.JobNotInitiated:
			if now.Sub(submittedAt) > p.queueTimeout {
				return msgs.queueTimeoutMsg(), nil
			}
		case types.JobInProgress:
			if runningSince.IsZero() {
				runningSince = now
			} else if now.Sub(runningSince) > p.executionTimeout {
				return msgs.executionTimeoutMsg(), nil
			}
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return "", err
		}
	}
}
