// Package resilient guards the durable stores with circuit breakers so a dead
// database fails fast instead of stalling every connection that touches it.
package resilient

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

type Settings struct {
	// ConsecutiveFailures that open the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout before a half-open probe is let through.
	OpenTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{ConsecutiveFailures: 5, OpenTimeout: 10 * time.Second}
}

func newBreaker(name string, s Settings, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// [CLASSIFICATION] Only infrastructure failures count against the store.
		IsSuccessful: func(err error) bool {
			return err == nil || model.KindOf(err) != model.KindPersistence
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("CIRCUIT_BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func call(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return classify(cb, err)
}

func query[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, classify(cb, err)
	}
	v, _ := out.(T)
	return v, nil
}

func classify(cb *gobreaker.CircuitBreaker, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.NewPersistenceError("store unavailable", err)
	}
	return err
}
