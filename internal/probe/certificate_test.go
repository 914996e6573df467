package probe

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/sentrymon/engine/internal/store"
)

func TestCertificateCheckerReportsExpiryDays(t *testing.T) {
	server := httptest.NewTLSServer(nil)
	defer server.Close()

	host := server.Listener.Addr().String()
	checker := &CertificateChecker{AllowPrivate: true}
	monitor := &store.Monitor{Target: host, TimeoutSeconds: 5}

	result, err := checker.Check(context.Background(), monitor)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %s", result.Message)
	}
	if result.Value == nil || *result.Value <= 0 {
		t.Fatalf("expected a positive days-until-expiry value, got %+v", result.Value)
	}
}

func TestCertificateCheckerValidateRequiresTarget(t *testing.T) {
	checker := &CertificateChecker{}
	if err := checker.Validate(&store.Monitor{}); err == nil {
		t.Fatal("expected validation error for missing target")
	}
}
