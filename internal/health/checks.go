package health

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is implemented by the record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Availability is implemented by the model fallback group.
type Availability interface {
	Available() bool
}

// StoreChecker fails when the store does not answer a ping.
func StoreChecker(p Pinger) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// LLMChecker reports a degraded extraction path when every model circuit
// breaker is open. Extraction still works through lexical matching.
func LLMChecker(a Availability) Checker {
	return Checker{
		Name:     "llm",
		Optional: true,
		Check: func(context.Context) error {
			if !a.Available() {
				return errors.New("all model providers unavailable")
			}
			return nil
		},
	}
}

// RecognizerChecker reports whether a recognizer client is attached.
func RecognizerChecker(connected func() bool) Checker {
	return Checker{
		Name:     "recognizer",
		Optional: true,
		Check: func(context.Context) error {
			if !connected() {
				return errors.New("no client connected")
			}
			return nil
		},
	}
}
