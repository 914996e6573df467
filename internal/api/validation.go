package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sentrymon/engine/internal/store"
)

var validMonitorTypes = map[string]bool{
	"url": true, "api_post": true, "ssh": true, "ping": true, "log": true,
	"certificate": true, "docker": true, "aws": true, "gcp": true, "azure": true,
}

func validateMonitor(m *store.Monitor) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if !validMonitorTypes[m.Type] {
		return fmt.Errorf("type must be one of: url, api_post, ssh, ping, log, certificate, docker, aws, gcp, azure")
	}
	if strings.TrimSpace(m.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if len(m.Target) > 2048 {
		return fmt.Errorf("target must be at most 2048 characters")
	}
	if m.PeriodMinutes < 1 {
		return fmt.Errorf("period_minutes must be at least 1")
	}
	if m.TimeoutSeconds < 1 || m.TimeoutSeconds > 300 {
		return fmt.Errorf("timeout_seconds must be between 1 and 300")
	}
	if m.ConsecutiveWarning < 1 {
		return fmt.Errorf("consecutive_warning must be at least 1")
	}
	if m.ConsecutiveAlarm < 1 {
		return fmt.Errorf("consecutive_alarm must be at least 1")
	}
	if m.ResetAfterMOK < 1 {
		return fmt.Errorf("reset_after_m_ok must be at least 1")
	}
	for _, c := range m.Contacts {
		if strings.TrimSpace(c.Email) == "" {
			return fmt.Errorf("every contact requires an email")
		}
	}
	if len(m.Settings) > 0 {
		var s map[string]interface{}
		if err := json.Unmarshal(m.Settings, &s); err != nil {
			return fmt.Errorf("settings must be a valid JSON object")
		}
	}
	return nil
}
