package health

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// mockChecker is a test double for health checks
type mockChecker struct {
	name   string
	result *Result
	delay  time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) *Result {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Unhealthy("check cancelled").
				WithDetail("error", ctx.Err().Error())
		}
	}
	return m.result
}

func TestNewManager(t *testing.T) {
	manager := NewManager()

	if manager.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", manager.timeout, DefaultTimeout)
	}
	if len(manager.CheckNames()) != 0 {
		t.Errorf("checkers should be empty, got %v", manager.CheckNames())
	}

	if returned := manager.WithTimeout(time.Second); returned != manager {
		t.Error("WithTimeout should return same manager for chaining")
	}
	if manager.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", manager.timeout)
	}
}

func TestCheckKeepsRegistrationOrder(t *testing.T) {
	manager := NewManager()
	manager.AddChecker(&mockChecker{name: "config", result: Healthy("ok"), delay: 30 * time.Millisecond})
	manager.AddChecker(&mockChecker{name: "credential", result: Degraded("expired")})
	manager.AddChecker(&mockChecker{name: "api-reachable", result: Unhealthy("down"), delay: 10 * time.Millisecond})

	reports := manager.Check(context.Background())

	want := []struct {
		name   string
		status Status
	}{
		{"config", StatusHealthy},
		{"credential", StatusDegraded},
		{"api-reachable", StatusUnhealthy},
	}
	if len(reports) != len(want) {
		t.Fatalf("Check() returned %d reports, want %d", len(reports), len(want))
	}
	for i, w := range want {
		if reports[i].Name != w.name || reports[i].Status != w.status {
			t.Errorf("reports[%d] = %s/%s, want %s/%s", i, reports[i].Name, reports[i].Status, w.name, w.status)
		}
	}
	if reports[0].Latency < 30*time.Millisecond {
		t.Errorf("reports[0].Latency = %v, want at least the check's delay", reports[0].Latency)
	}
}

func TestCheckWithTimeout(t *testing.T) {
	manager := NewManager().WithTimeout(50 * time.Millisecond)
	manager.AddChecker(&mockChecker{name: "slow", result: Healthy("late"), delay: time.Second})

	reports := manager.Check(context.Background())

	if reports[0].Status != StatusUnhealthy {
		t.Errorf("slow check should be unhealthy due to timeout, got %v", reports[0].Status)
	}
	if reports[0].Message != "check cancelled" {
		t.Errorf("Message = %q, want %q", reports[0].Message, "check cancelled")
	}
}

func TestCheckNilResult(t *testing.T) {
	manager := NewManager()
	manager.AddChecker(&mockChecker{name: "broken"})

	reports := manager.Check(context.Background())
	if reports[0].Status != StatusUnhealthy {
		t.Errorf("nil result should be unhealthy, got %v", reports[0].Status)
	}
}

func TestCheckConcurrency(t *testing.T) {
	manager := NewManager()
	for i := 0; i < 5; i++ {
		manager.AddChecker(&mockChecker{
			name:   fmt.Sprintf("checker-%d", i),
			result: Healthy("ok"),
			delay:  50 * time.Millisecond,
		})
	}

	start := time.Now()
	reports := manager.Check(context.Background())
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Errorf("Check took %v, expected parallel execution", elapsed)
	}
	if len(reports) != 5 {
		t.Errorf("Check() returned %d reports, want 5", len(reports))
	}
}

func TestOverallStatus(t *testing.T) {
	report := func(s Status) Report { return Report{Name: string(s), Result: NewResult(s, "")} }

	tests := []struct {
		name    string
		reports []Report
		want    Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Report{report(StatusHealthy), report(StatusHealthy)}, StatusHealthy},
		{"one degraded", []Report{report(StatusHealthy), report(StatusDegraded)}, StatusDegraded},
		{"unhealthy wins", []Report{report(StatusDegraded), report(StatusUnhealthy), report(StatusHealthy)}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.reports); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
