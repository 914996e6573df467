package probe

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

func TestLogCheckerCountsUserPatternMatches(t *testing.T) {
	f, err := os.CreateTemp("", "sentrymon-log-*.log")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.WriteString("line one ok\nline two INFO timeout\nline three ok\nline four INFO refused\n")
	f.Close()

	settings, _ := json.Marshal(store.LogSettings{UserPatterns: []string{"INFO"}})
	checker := &LogChecker{}
	monitor := &store.Monitor{Target: f.Name(), TimeoutSeconds: 5, Settings: settings}

	result, err := checker.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.Message)
	}
	if result.Status != check.StatusOK {
		t.Fatalf("expected ok status with no catalogue hits, got %s", result.Status)
	}
	if got := result.Metadata["user_matches"]; got != 2 {
		t.Fatalf("expected 2 INFO matches, got %+v", got)
	}
}

func TestLogCheckerCatalogueCriticalHitAlarms(t *testing.T) {
	f, err := os.CreateTemp("", "sentrymon-log-*.log")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.WriteString("line one ok\nkernel: oom-killer killed process 1234\nline three ok\n")
	f.Close()

	checker := &LogChecker{}
	monitor := &store.Monitor{Target: f.Name(), TimeoutSeconds: 5}

	result, err := checker.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != check.StatusAlarm {
		t.Fatalf("expected alarm status on a Memory catalogue hit, got %s", result.Status)
	}
	if result.Value == nil || *result.Value < 1 {
		t.Fatalf("expected value to count the critical hit, got %+v", result.Value)
	}
}

func TestLogCheckerCatalogueHighHitWarns(t *testing.T) {
	f, err := os.CreateTemp("", "sentrymon-log-*.log")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.WriteString("line one ok\nopen(/etc/shadow): permission denied\nline three ok\n")
	f.Close()

	checker := &LogChecker{}
	monitor := &store.Monitor{Target: f.Name(), TimeoutSeconds: 5}

	result, err := checker.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != check.StatusWarning {
		t.Fatalf("expected warning status on a Permission denied catalogue hit, got %s", result.Status)
	}
}

func TestLogCheckerValidateRejectsBadPattern(t *testing.T) {
	settings, _ := json.Marshal(store.LogSettings{UserPatterns: []string{"("}})
	checker := &LogChecker{}
	monitor := &store.Monitor{Settings: settings}

	if err := checker.Validate(monitor); err == nil {
		t.Fatal("expected invalid regex to fail validation")
	}
}
