// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/jarvisctl/pkg/config"
	"github.com/dotsetgreg/jarvisctl/pkg/logger"
)

// RefreshFunc performs one background refresh. Beats are independent;
// a failing beat is logged and the schedule keeps ticking.
type RefreshFunc func(ctx context.Context) error

// Service fires a periodic backend refresh. Scheduling is either a
// cron expression (checked once a minute via gronx) or a plain
// interval in minutes.
type Service struct {
	cfg      config.HeartbeatConfig
	refresh  RefreshFunc
	cronExpr string

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewService(cfg config.HeartbeatConfig, refresh RefreshFunc) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		refresh:  refresh,
		cronExpr: strings.TrimSpace(cfg.Cron),
	}

	if s.cronExpr != "" && !gronx.New().IsValid(s.cronExpr) {
		return nil, fmt.Errorf("invalid heartbeat cron expression %q", s.cronExpr)
	}

	return s, nil
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		logger.InfoC("heartbeat", "Heartbeat disabled")
		return nil
	}
	if s.running {
		return fmt.Errorf("heartbeat already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go s.run(ctx)

	logger.InfoCF("heartbeat", "Heartbeat started", map[string]interface{}{
		"interval_minutes": s.intervalMinutes(),
		"cron":             s.cfg.Cron,
	})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.cancel = nil
	s.running = false
	logger.InfoC("heartbeat", "Heartbeat stopped")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) intervalMinutes() int {
	if s.cfg.Interval < 1 {
		return 1
	}
	return s.cfg.Interval
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// Interval countdown, reset after every beat.
	remaining := s.intervalMinutes()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.cronExpr != "" {
			due, err := gronx.New().IsDue(s.cronExpr, time.Now())
			if err != nil {
				logger.ErrorCF("heartbeat", "Cron check failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if !due {
				continue
			}
		} else {
			remaining--
			if remaining > 0 {
				continue
			}
			remaining = s.intervalMinutes()
		}

		s.beat(ctx)
	}
}

func (s *Service) beat(ctx context.Context) {
	beatCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.refresh(beatCtx); err != nil {
		logger.WarnCF("heartbeat", "Refresh failed", map[string]interface{}{"error": err.Error()})
		return
	}
	logger.DebugC("heartbeat", "Refresh completed")
}
