package heartbeat

import (
	"context"
	"testing"

	"github.com/dotsetgreg/jarvisctl/pkg/config"
)

func noopRefresh(ctx context.Context) error { return nil }

func TestDisabledServiceNeverRuns(t *testing.T) {
	s, err := NewService(config.HeartbeatConfig{Enabled: false, Interval: 1}, noopRefresh)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("disabled service must not run")
	}
}

func TestStartStop(t *testing.T) {
	s, err := NewService(config.HeartbeatConfig{Enabled: true, Interval: 15}, noopRefresh)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("expected running service")
	}
	if err := s.Start(); err == nil {
		t.Fatalf("double start must fail")
	}
	s.Stop()
	if s.IsRunning() {
		t.Fatalf("expected stopped service")
	}
	s.Stop()
}

func TestInvalidCronRejected(t *testing.T) {
	if _, err := NewService(config.HeartbeatConfig{Enabled: true, Cron: "not a cron"}, noopRefresh); err == nil {
		t.Fatalf("expected invalid cron to be rejected")
	}
}

func TestValidCronAccepted(t *testing.T) {
	if _, err := NewService(config.HeartbeatConfig{Enabled: true, Cron: "*/5 * * * *"}, noopRefresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
