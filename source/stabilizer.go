package source

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Stabilizer spaces successive deliveries at least one frame interval apart.
// It is a token bucket with a burst of one, so the first Wait after Reset
// returns immediately.
type Stabilizer struct {
	mu  sync.Mutex
	fps float64
	lim *rate.Limiter
}

// NewStabilizer returns a stabilizer for a frame rate
func NewStabilizer(fps float64) *Stabilizer {
	return &Stabilizer{fps: fps, lim: rate.NewLimiter(rate.Limit(fps), 1)}
}

// Reset forgets the previous delivery
func (s *Stabilizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lim = rate.NewLimiter(rate.Limit(s.fps), 1)
}

// FPS returns the target frame rate
func (s *Stabilizer) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// SetFPS changes the target frame rate, effective from the next delivery
func (s *Stabilizer) SetFPS(fps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps
	s.lim.SetLimit(rate.Limit(fps))
}

// Wait blocks until it is time to deliver the next frame or ctx is done
func (s *Stabilizer) Wait(ctx context.Context) error {
	s.mu.Lock()
	lim := s.lim
	s.mu.Unlock()
	return lim.Wait(ctx)
}
