package orders

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor periodically expires orders whose deadlines have passed. Lazy
// evaluation on access is what guarantees correctness; the sweeper only keeps
// stale orders from lingering unread.
type Processor struct {
	service      *Service
	processDelay time.Duration // Time between expiry sweeps
}

func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:      service,
		processDelay: time.Minute,
	}
}

// Start begins the deadline sweep loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_expiry_processor").Logger()
	logger.Info().Msg("starting order expiry processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order expiry processor")
			return
		case <-ticker.C:
			if err := p.sweep(); err != nil {
				logger.Error().Err(err).Msg("failed to sweep expired orders")
			}
		}
	}
}

func (p *Processor) sweep() error {
	logger := log.With().Str("component", "order_expiry_processor").Logger()

	candidates, err := p.service.db.GetDeadlineCandidates(time.Now())
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	logger.Info().Int("candidates", len(candidates)).Msg("expiring overdue orders")

	for i := range candidates {
		if _, err := p.service.expire(candidates[i].OrderID); err != nil {
			logger.Error().
				Err(err).
				Str("order_id", candidates[i].OrderID).
				Msg("failed to expire order")
		}
	}
	return nil
}
