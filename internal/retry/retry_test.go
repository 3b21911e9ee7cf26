package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id int
}

// recordingObserver remembers every notification it receives.
type recordingObserver struct {
	mu       sync.Mutex
	attempts []int
	failures []int
}

func (r *recordingObserver) OnAttempt(_ string, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func (r *recordingObserver) OnFailure(_ string, attempt int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, attempt)
}

func failingDial(calls *int) DialFunc[*fakeConn] {
	return func(ctx context.Context) (*fakeConn, error) {
		*calls++
		return nil, errors.New("connection refused")
	}
}

func TestConnectWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	obs := &recordingObserver{}

	conn, err := ConnectWithRetry(context.Background(), "db", Policy{MaxAttempts: 4, RetryDelay: time.Millisecond}, failingDial(&calls), obs)
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.Equal(t, 4, calls)

	var exhausted *ConnectionExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, "db", exhausted.Target)
	assert.EqualError(t, exhausted.LastErr, "connection refused")
	assert.Equal(t, []int{1, 2, 3, 4}, obs.attempts)
	assert.Equal(t, []int{1, 2, 3, 4}, obs.failures)
}

func TestConnectWithRetry_SucceedsOnKthAttempt(t *testing.T) {
	calls := 0
	dial := func(ctx context.Context) (*fakeConn, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("not yet")
		}
		return &fakeConn{id: calls}, nil
	}
	obs := &recordingObserver{}

	conn, err := ConnectWithRetry(context.Background(), "broker", Policy{MaxAttempts: 5, RetryDelay: time.Millisecond}, dial, obs)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 3, conn.id)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2, 3}, obs.attempts)
	assert.Equal(t, []int{1, 2}, obs.failures)
}

func TestConnectWithRetry_SingleAttemptNeverSleeps(t *testing.T) {
	calls := 0
	start := time.Now()

	_, err := ConnectWithRetry(context.Background(), "db", Policy{MaxAttempts: 1, RetryDelay: time.Hour}, failingDial(&calls), nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectWithRetry_DelaysBetweenAttemptsOnly(t *testing.T) {
	calls := 0
	delay := 300 * time.Millisecond
	start := time.Now()

	_, err := ConnectWithRetry(context.Background(), "db", Policy{MaxAttempts: 2, RetryDelay: delay}, failingDial(&calls), nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, elapsed, delay)
	assert.Less(t, elapsed, 2*delay-50*time.Millisecond, "no delay expected after the final attempt")
}

func TestConnectWithRetry_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	dial := func(ctx context.Context) (*fakeConn, error) {
		calls++
		cancel()
		return nil, errors.New("refused")
	}

	_, err := ConnectWithRetry(ctx, "db", Policy{MaxAttempts: 10, RetryDelay: time.Hour}, dial, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	var exhausted *ConnectionExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestConnectWithRetry_CancelWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := ConnectWithRetry(ctx, "db", Policy{MaxAttempts: 3, RetryDelay: time.Hour}, failingDial(&calls), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConnectWithRetry_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := ConnectWithRetry(ctx, "db", DefaultPolicy(), failingDial(&calls), nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, calls)
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{name: "default", policy: DefaultPolicy()},
		{name: "single attempt no delay", policy: Policy{MaxAttempts: 1}},
		{name: "zero attempts", policy: Policy{MaxAttempts: 0}, wantErr: true},
		{name: "negative delay", policy: Policy{MaxAttempts: 1, RetryDelay: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectWithRetry_InvalidPolicyDoesNotDial(t *testing.T) {
	calls := 0
	_, err := ConnectWithRetry(context.Background(), "db", Policy{}, failingDial(&calls), nil)
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	calls := 0

	_, err := ConnectWithRetry(context.Background(), "postgres", Policy{MaxAttempts: 3}, failingDial(&calls), Observers(metrics, nil))
	require.Error(t, err)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AttemptsTotal.WithLabelValues("postgres")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.FailuresTotal.WithLabelValues("postgres")))
}
