package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGateTimeout is returned when the caller gave up before the camera became free.
var ErrGateTimeout = errors.New("capture: timed out waiting for camera")

// Gate grants exclusive use of the camera. Exactly one function runs inside
// Do at a time, process-wide; a second camera would need its own Gate.
//
// Waiting is unbounded unless the context ends or a timeout is configured.
// Once fn has started it always runs to completion.
type Gate struct {
	sem     chan struct{}
	timeout time.Duration
}

// NewGate creates a gate. timeout <= 0 means wait as long as the caller's context allows.
func NewGate(timeout time.Duration) *Gate {
	return &Gate{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

// Do waits for exclusive access, runs fn and releases access on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	// Prefer a free gate over an already-cancelled context.
	select {
	case g.sem <- struct{}{}:
	default:
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrGateTimeout, ctx.Err())
		}
	}
	defer func() { <-g.sem }()

	return fn()
}

// Busy reports whether a capture currently holds the gate.
func (g *Gate) Busy() bool {
	return len(g.sem) > 0
}
