package ethereum

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"MindPress-Market/pkg/logger"

	"github.com/sony/gobreaker"
)

// BreakerSettings controls the circuit breaker placed in front of read calls.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

func newBreaker(settings BreakerSettings) *gobreaker.CircuitBreaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Name == "" {
		settings.Name = "evm-reader"
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     settings.Name,
		Interval: settings.Interval,
		Timeout:  settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// A revert is a healthy node answering no; only transport failures count.
		IsSuccessful: func(err error) bool {
			return err == nil || IsRevert(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().Warn("RPC 熔断器状态变化",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// read runs fn through the breaker and classifies the failure.
func read[T any](cb *gobreaker.CircuitBreaker, message string, fn func() (T, error)) (T, error) {
	var zero T
	if cb == nil {
		out, err := fn()
		if err != nil {
			return zero, classify(err, message)
		}
		return out, nil
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, classify(err, message)
	}
	return out.(T), nil
}
