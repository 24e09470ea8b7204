package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-mcp-server/internal/types"
)

// fakeClock advances time only when the poller sleeps, so timeout behavior
// is exercised without real waiting.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return nil
}

// scriptedStatus replays a fixed sequence of status codes. The last code
// repeats once the sequence is exhausted.
func scriptedStatus(codes []string, calls *int) StatusFunc {
	return func(ctx context.Context, jobID string) (string, error) {
		i := *calls
		*calls++
		if i >= len(codes) {
			i = len(codes) - 1
		}
		return codes[i], nil
	}
}

func newTestPoller(clock *fakeClock, opts ...Option) *Poller {
	base := []Option{
		WithInterval(2 * time.Second),
		WithQueueTimeout(30 * time.Second),
		WithExecutionTimeout(60 * time.Second),
		WithClock(clock.now, clock.sleep),
	}
	return New(append(base, opts...)...)
}

func TestWaitCompletedImmediately(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock)

	msg, err := p.Wait(context.Background(), scriptedStatus([]string{types.JobCompleted}, &calls), "job-1", StatusMessages{})

	require.NoError(t, err)
	assert.Empty(t, msg)
	// No further status queries and no sleeping after a completed code
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Time{}, clock.t)
}

func TestWaitRemoteError(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock)

	msgs := StatusMessages{Error: "query failed remotely"}
	msg, err := p.Wait(context.Background(), scriptedStatus([]string{types.JobInProgress, types.JobError}, &calls), "job-1", msgs)

	require.NoError(t, err)
	assert.Equal(t, "query failed remotely", msg)
}

func TestWaitQueueTimeout(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock)

	start := clock.t
	msgs := StatusMessages{QueueTimeout: "queue is slow"}
	msg, err := p.Wait(context.Background(), scriptedStatus([]string{types.JobNotInitiated}, &calls), "job-1", msgs)

	require.NoError(t, err)
	assert.Equal(t, "queue is slow", msg)

	// Fires no earlier than the budget and within one interval past it.
	elapsed := clock.t.Sub(start)
	assert.Greater(t, elapsed, 30*time.Second)
	assert.LessOrEqual(t, elapsed, 30*time.Second+2*time.Second)
}

func TestWaitExecutionTimeout(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock)

	// The job starts running on the third poll; the execution anchor must be
	// measured from that observation, not from submission.
	codes := []string{types.JobNotInitiated, types.JobNotInitiated, types.JobInProgress}
	msgs := StatusMessages{ExecutionTimeout: "too slow to execute"}
	msg, err := p.Wait(context.Background(), scriptedStatus(codes, &calls), "job-1", msgs)

	require.NoError(t, err)
	assert.Equal(t, "too slow to execute", msg)

	// Anchor was set at t=4s (third poll); timeout fires once now-anchor > 60s.
	elapsed := clock.t.Sub(time.Time{}.Add(4 * time.Second))
	assert.Greater(t, elapsed, 60*time.Second)
	assert.LessOrEqual(t, elapsed, 60*time.Second+2*time.Second)
}

func TestWaitRunningAnchorNotResetByFlap(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock)

	// in-progress, back to queued, in-progress again, then done. The anchor
	// from the first in-progress observation must survive the flap.
	codes := []string{types.JobInProgress, types.JobNotInitiated, types.JobInProgress, types.JobCompleted}
	msg, err := p.Wait(context.Background(), scriptedStatus(codes, &calls), "job-1", StatusMessages{})

	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, 4, calls)
}

func TestWaitFlapWithinBudgetStillTimesOutFromFirstAnchor(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock, WithExecutionTimeout(5*time.Second))

	// First in-progress at t=0 anchors the budget; the later queued code must
	// not reset it, so the fourth in-progress poll (t=8s) exceeds 5s.
	codes := []string{
		types.JobInProgress,
		types.JobNotInitiated,
		types.JobInProgress,
		types.JobInProgress,
		types.JobInProgress,
	}
	msg, err := p.Wait(context.Background(), scriptedStatus(codes, &calls), "job-1", StatusMessages{})

	require.NoError(t, err)
	assert.Equal(t, defaultExecutionTimeoutMsg, msg)
}

func TestWaitUnrecognizedCodesDoNotTripBudgets(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	p := newTestPoller(clock, WithQueueTimeout(3*time.Second), WithExecutionTimeout(3*time.Second))

	// Far more unknown-code cycles than either budget allows; the session
	// must ride them out and still see the completion.
	codes := []string{"4200", "4200", "4200", "4200", "4200", "4200", types.JobCompleted}
	msg, err := p.Wait(context.Background(), scriptedStatus(codes, &calls), "job-1", StatusMessages{})

	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, 7, calls)
}

func TestWaitStatusQueryErrorPropagates(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPoller(clock)

	boom := errors.New("connection reset")
	status := func(ctx context.Context, jobID string) (string, error) {
		return "", boom
	}

	msg, err := p.Wait(context.Background(), status, "job-1", StatusMessages{})
	assert.Empty(t, msg)
	assert.ErrorIs(t, err, boom)
}

func TestWaitContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(WithInterval(10 * time.Millisecond))

	status := func(ctx context.Context, jobID string) (string, error) {
		cancel()
		return types.JobInProgress, nil
	}

	msg, err := p.Wait(ctx, status, "job-1", StatusMessages{})
	assert.Empty(t, msg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusMessageDefaults(t *testing.T) {
	var m StatusMessages
	assert.Equal(t, defaultErrorMsg, m.errorMsg())
	assert.Equal(t, defaultQueueTimeoutMsg, m.queueTimeoutMsg())
	assert.Equal(t, defaultExecutionTimeoutMsg, m.executionTimeoutMsg())

	m = StatusMessages{Error: "a", QueueTimeout: "b", ExecutionTimeout: "c"}
	assert.Equal(t, "a", m.errorMsg())
	assert.Equal(t, "b", m.queueTimeoutMsg())
	assert.Equal(t, "c", m.executionTimeoutMsg())
}
