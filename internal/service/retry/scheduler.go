// Package retry runs an operation under a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"time"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
)

// State is a step of the retry state machine.
type State string

const (
	StateIdle       State = "idle"
	StateAttempting State = "attempting"
	StateWaiting    State = "waiting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Policy bounds a retry loop. The delay is fixed between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy allows three attempts three seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 3 * time.Second}
}

// RetryState is the observable progress of one Run.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	LastError   error
	State       State
}

// Sleeper waits for d or until ctx ends, returning ctx's error in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives every state transition of a Run.
type Observer func(RetryState)

// Scheduler carries a policy plus the hooks used while running it.
// A Scheduler holds no per-run state and may be shared.
type Scheduler struct {
	policy    Policy
	sleep     Sleeper
	observe   Observer
	retryable func(error) bool
}

type Option func(*Scheduler)

// WithSleeper replaces the timer-based wait.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scheduler) { sc.sleep = s }
}

func WithObserver(o Observer) Option {
	return func(sc *Scheduler) { sc.observe = o }
}

// WithClassifier decides which errors are worth another attempt.
func WithClassifier(fn func(error) bool) Option {
	return func(sc *Scheduler) { sc.retryable = fn }
}

// New creates a Scheduler. A policy with fewer than one attempt is raised to one.
func New(policy Policy, opts ...Option) *Scheduler {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	s := &Scheduler{
		policy:    policy,
		sleep:     TimerSleep,
		retryable: DefaultRetryable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Policy() Policy { return s.policy }

func (s *Scheduler) notify(st RetryState) {
	if s.observe != nil {
		s.observe(st)
	}
}

// TimerSleep waits on a timer, giving up early when ctx ends.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultRetryable retries AppErrors marked retryable and any error that
// is not an AppError, such as a dropped connection.
func DefaultRetryable(err error) bool {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Retryable
	}
	return true
}

// Run calls op until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. Exhaustion yields a RETRY_EXHAUSTED
// AppError whose cause is the last attempt's error. When ctx ends before
// an attempt or during a wait, Run stops without another attempt and
// returns ctx's error.
func Run[T any](ctx context.Context, s *Scheduler, op func(context.Context) (T, error)) (T, error) {
	var zero T
	st := RetryState{
		MaxAttempts: s.policy.MaxAttempts,
		Delay:       s.policy.Delay,
		State:       StateIdle,
	}

	cancelled := func(err error) (T, error) {
		st.State = StateCancelled
		s.notify(st)
		return zero, err
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		st.Attempt = attempt
		st.State = StateAttempting
		s.notify(st)

		v, err := op(ctx)
		if err == nil {
			st.State = StateSucceeded
			st.LastError = nil
			s.notify(st)
			return v, nil
		}
		st.LastError = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}

		if !s.retryable(err) {
			st.State = StateFailed
			s.notify(st)
			return zero, err
		}

		if attempt >= s.policy.MaxAttempts {
			st.State = StateFailed
			s.notify(st)
			return zero, apperrors.NewRetryExhaustedError(attempt, err)
		}

		st.State = StateWaiting
		s.notify(st)
		if err := s.sleep(ctx, s.policy.Delay); err != nil {
			return cancelled(err)
		}
	}
}
