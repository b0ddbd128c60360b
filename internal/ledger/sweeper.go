package ledger

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Minute

// Sweeper runs SweepExpired on a fixed interval until stopped.
type Sweeper struct {
	ledger   *Ledger
	maxAge   time.Duration
	interval time.Duration
	logger   Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper but does not start it. A maxAge of zero or
// less disables sweeping.
func NewSweeper(l *Ledger, maxAge, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		ledger:   l,
		maxAge:   maxAge,
		interval: interval,
		logger:   l.logger,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. The loop exits when ctx is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	if s.maxAge <= 0 {
		s.logger.Info("command sweeper disabled")
		close(s.done)
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)

	s.logger.Info("command sweeper started",
		"max_age", s.maxAge.String(),
		"interval", s.interval.String(),
	)
}

// Stop signals the loop to exit and waits for it. It must follow Start.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.ledger.SweepExpired(ctx, s.maxAge)
	if err != nil {
		s.logger.Warn("command sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept expired commands", "count", n)
	}
}
