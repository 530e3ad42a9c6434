package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("serialization failure")

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retries []int
	p := fast(5)
	p.OnRetry = func(attempt int, err error, _ time.Duration) {
		retries = append(retries, attempt)
		assert.ErrorIs(t, err, errBusy)
	}

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_GivesUpWithLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientStopsImmediately(t *testing.T) {
	p := fast(5)
	p.Transient = func(err error) bool { return errors.Is(err, errBusy) }

	calls := 0
	denied := errors.New("permission denied")
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return denied
	})
	assert.Equal(t, denied, err)
	assert.Equal(t, 1, calls)
}

func TestDo_Permanent(t *testing.T) {
	calls := 0
	bad := errors.New("bad url")
	err := Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestDo_SingleAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second}

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errBusy
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), fast(3), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errBusy
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPolicies(t *testing.T) {
	assert.Equal(t, 5, Connect().MaxAttempts)
	assert.Equal(t, 3, Transaction().MaxAttempts)
	assert.Nil(t, Transaction().Transient, "callers pick the classifier")
}
