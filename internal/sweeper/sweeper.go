package sweeper

import (
	"log/slog"
	"sync"
	"time"
)

// Expirer removes rooms idle since cutoff and reports how many it removed
type Expirer interface {
	ExpireIdle(cutoff time.Time) int
}

type Config struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		IdleTTL:  2 * time.Hour,
	}
}

// Service periodically expires rooms that have seen no joins, edits or
// departures for IdleTTL and whose mentor is no longer connected. Rooms
// with a live mentor are left alone however quiet they are.
type Service struct {
	rooms  Expirer
	config Config
	logger *slog.Logger
	now    func() time.Time
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(rooms Expirer, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rooms:  rooms,
		config: config,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("idle room sweeper started",
		"interval", s.config.Interval,
		"idle_ttl", s.config.IdleTTL)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("idle room sweeper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow expires idle rooms immediately
func (s *Service) SweepNow() int {
	n := s.rooms.ExpireIdle(s.now().Add(-s.config.IdleTTL))
	if n > 0 {
		s.logger.Info("expired idle rooms", "count", n)
	}
	return n
}
