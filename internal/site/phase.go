package site

import "context"

// Phase is the coarse stage an invocation is in.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCleaning     Phase = "cleaning"
	PhaseFetching     Phase = "fetching"
	PhaseTransforming Phase = "transforming"
	PhaseServing      Phase = "serving"
	PhasePublishing   Phase = "publishing"
)

// Phase returns the current phase.
func (s *Site) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Phases returns every phase entered during the current invocation, in order.
func (s *Site) Phases() []Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Phase(nil), s.history...)
}

func (s *Site) setPhase(ctx context.Context, p Phase) {
	s.mu.Lock()
	prev := s.phase
	s.phase = p
	if prev != p {
		s.history = append(s.history, p)
	}
	s.mu.Unlock()

	if prev != p {
		s.logger.Debug(ctx, "Phase changed", "from", string(prev), "to", string(p))
	}
}
