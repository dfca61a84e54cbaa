package service

import (
	"log/slog"
	"time"
)

// expiredPurger is implemented by code stores that need an in-process
// sweep. The Redis store expires keys server-side and does not implement it.
type expiredPurger interface {
	PurgeExpired() int
}

// HousekeepingService periodically drops terminally expired sessions and,
// when the code store is in-memory, codes past their redemption window.
type HousekeepingService struct {
	Sessions *SessionManager
	Purger   expiredPurger // nil when the store sweeps itself
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 10 minutes.
func NewHousekeepingService(sessions *SessionManager, purger expiredPurger, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &HousekeepingService{
		Sessions: sessions,
		Purger:   purger,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to
// gracefully shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the background worker, blocking until any in-progress
// sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	reaped := s.Sessions.Reap()

	purged := 0
	if s.Purger != nil {
		purged = s.Purger.PurgeExpired()
	}

	if reaped > 0 || purged > 0 {
		s.Logger.Info("housekeeping sweep completed",
			"sessions_reaped", reaped,
			"codes_purged", purged,
		)
	}
}
