package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errRateLimited = errors.New("429")
	errNotFound    = errors.New("404")
	errBoom        = errors.New("boom")
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func testPolicy(s *recordingSleeper) Policy {
	return Policy{
		MaxAttempts:    2,
		Delay:          30 * time.Second,
		RateLimitDelay: 60 * time.Second,
		IsRateLimited:  func(err error) bool { return errors.Is(err, errRateLimited) },
		IsPermanent:    func(err error) bool { return errors.Is(err, errNotFound) },
		Sleep:          s.sleep,
	}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantWaits []time.Duration
		wantErr   error
	}{
		{
			name:      "first attempt succeeds",
			results:   []error{nil},
			wantCalls: 1,
		},
		{
			name:      "generic failure then success",
			results:   []error{errBoom, nil},
			wantCalls: 2,
			wantWaits: []time.Duration{30 * time.Second},
		},
		{
			name:      "rate limited uses the longer delay",
			results:   []error{errRateLimited, nil},
			wantCalls: 2,
			wantWaits: []time.Duration{60 * time.Second},
		},
		{
			name:      "exhausted after max attempts",
			results:   []error{errRateLimited, errRateLimited},
			wantCalls: 2,
			wantWaits: []time.Duration{60 * time.Second},
			wantErr:   ErrExhausted,
		},
		{
			name:      "permanent error is not retried",
			results:   []error{errNotFound},
			wantCalls: 1,
			wantErr:   errNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSleeper{}
			calls := 0
			err := Do(context.Background(), testPolicy(s), func(ctx context.Context) error {
				res := tt.results[calls]
				calls++
				return res
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantWaits, s.waits)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDo_ExhaustedKeepsLastError(t *testing.T) {
	s := &recordingSleeper{}
	err := Do(context.Background(), testPolicy(s), func(ctx context.Context) error {
		return errRateLimited
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.ErrorIs(t, err, errRateLimited)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 2, Delay: time.Hour}
	err := Do(ctx, p, func(ctx context.Context) error { return errBoom })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_ZeroDuration(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestBetween(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		d := Between(rng, 3*time.Second, 5*time.Second)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}

	assert.Equal(t, 2*time.Second, Between(rng, 2*time.Second, time.Second))
	assert.Equal(t, time.Millisecond, Between(rng, 0, 0))
}
