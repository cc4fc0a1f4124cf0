package assign

import (
	"fmt"

	"github.com/davidjurgens/potato-sub004/internal/pool"
	"github.com/davidjurgens/potato-sub004/internal/session"
)

// Engine assigns bounded batches of pool items to user sessions through
// the configured strategy.
type Engine struct {
	pool     *pool.Pool
	strategy Strategy
	// maxPerItem caps distinct annotators per item; -1 is unbounded.
	maxPerItem int
	// batchSize bounds how many items one call may assign.
	batchSize int
}

// EngineConfig wires an engine from the task configuration.
type EngineConfig struct {
	Strategy              string
	StrategyConfig        Config
	MaxAnnotationsPerItem int
	BatchSize             int
}

// NewEngine validates the configuration and builds the engine. An unknown
// strategy name fails here, at startup.
func NewEngine(p *pool.Pool, cfg EngineConfig) (*Engine, error) {
	strategy, err := NewStrategy(cfg.Strategy, cfg.StrategyConfig)
	if err != nil {
		return nil, err
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		return nil, fmt.Errorf("assignment batch size must be positive, got %d", batch)
	}
	return &Engine{
		pool:       p,
		strategy:   strategy,
		maxPerItem: cfg.MaxAnnotationsPerItem,
		batchSize:  batch,
	}, nil
}

// StrategyName reports the active strategy.
func (e *Engine) StrategyName() string { return e.strategy.Name() }

// AssignInstancesToUser selects and assigns a batch of items to the
// session and returns how many were assigned. When the user is at their
// cap, or every remaining item is already held or at its per-item cap, it
// returns 0 without mutating the session: a fresh session after global
// completion keeps an empty ordering.
func (e *Engine) AssignInstancesToUser(s *session.UserSession) int {
	if !s.HasRemainingAssignments() {
		return 0
	}

	eligible := e.eligibleFor(s)
	if len(eligible) == 0 {
		return 0
	}

	limit := e.batchSize
	if remaining := s.RemainingAssignments(); remaining >= 0 && remaining < limit {
		limit = remaining
	}

	assigned := 0
	for _, itemID := range e.strategy.Prioritize(e.pool, s, eligible) {
		if assigned >= limit {
			break
		}
		if s.AssignInstance(itemID) {
			assigned++
		}
	}
	return assigned
}

// eligibleFor lists, in pool order, the items the session does not hold
// that still have annotation capacity.
func (e *Engine) eligibleFor(s *session.UserSession) []string {
	var eligible []string
	for _, itemID := range e.pool.Order() {
		if s.HasAssigned(itemID) {
			continue
		}
		if e.maxPerItem > 0 && e.pool.AnnotationCount(itemID) >= e.maxPerItem {
			continue
		}
		eligible = append(eligible, itemID)
	}
	return eligible
}
