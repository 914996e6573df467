package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

// LogChecker tails a log file (locally, or remotely over SSH) and
// counts lines matching user_patterns. Value is the match count.
type LogChecker struct {
	Secrets SecretResolver
}

func (c *LogChecker) Type() string { return "log" }

func (c *LogChecker) Validate(m check.Monitor) error {
	var s store.LogSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid log settings: %w", err)
		}
	}
	for _, p := range s.UserPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid user_pattern %q: %w", p, err)
		}
	}
	if s.Remote && s.SSH.Username == "" {
		return fmt.Errorf("remote log checks require ssh settings")
	}
	return nil
}

func (c *LogChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.LogSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}
	tailLines := s.TailLines
	if tailLines <= 0 {
		tailLines = 100
	}

	start := time.Now()
	var tail string
	var err error
	if s.Remote {
		tail, err = c.tailRemote(ctx, m, s, tailLines)
	} else {
		tail, err = tailLocalFile(m.GetTarget(), tailLines)
	}
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: err.Error(), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	userMatches := 0
	for _, p := range s.UserPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		userMatches += len(re.FindAllString(tail, -1))
	}

	hits := classifyCatalogueLines(tail)
	criticalCount, highCount, mediumCount := 0, 0, 0
	var categories []string
	var sampleLine string
	for _, h := range hits {
		switch h.severity {
		case severityCritical:
			criticalCount++
		case severityHigh:
			highCount++
		case severityMedium:
			mediumCount++
		}
		categories = append(categories, h.category)
		if sampleLine == "" {
			sampleLine = h.line
		}
	}

	value := float64(criticalCount + highCount)

	status := check.StatusOK
	switch {
	case criticalCount > 0:
		status = check.StatusAlarm
	case highCount > 0 || mediumCount > 0:
		status = check.StatusWarning
	}

	if status != check.StatusOK {
		return &check.Result{
			Success: true, Status: status, Value: &value,
			Message: fmt.Sprintf("catalogue match detected: %s", sampleLine),
			Metadata: map[string]any{
				"categories":     categories,
				"critical_count": criticalCount,
				"high_count":     highCount,
				"medium_count":   mediumCount,
				"user_matches":   userMatches,
			},
			ResponseTime: &elapsed, Timestamp: time.Now(),
		}, nil
	}

	return &check.Result{
		Success: true, Status: status, Value: &value,
		Message:      fmt.Sprintf("%d user-pattern matches in last %d lines, no catalogue hits", userMatches, tailLines),
		Metadata:     map[string]any{"user_matches": userMatches},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}

type logSeverity int

const (
	severityMedium logSeverity = iota
	severityHigh
	severityCritical
)

type catalogueHit struct {
	category string
	severity logSeverity
	line     string
}

// logCatalogue is the built-in failure-signature catalogue, independent
// of any operator-supplied user_patterns. Checked in order; every line
// is tested against every entry so multiple distinct hits can surface.
var logCatalogue = []struct {
	re       *regexp.Regexp
	category string
	severity logSeverity
}{
	{regexp.MustCompile(`(?i)out of memory|OutOfMemoryError|oom-?killer|killed process`), "Memory", severityCritical},
	{regexp.MustCompile(`(?i)no space left on device|disk full`), "Disk", severityCritical},
	{regexp.MustCompile(`(?i)panic:|segmentation fault|fatal error:`), "Crash", severityCritical},
	{regexp.MustCompile(`(?i)deadlock detected|lock wait timeout exceeded`), "Deadlock", severityCritical},
	{regexp.MustCompile(`(?i)too many open files|EMFILE`), "FileDescriptors", severityHigh},
	{regexp.MustCompile(`(?i)connection refused|connection reset by peer`), "Network", severityHigh},
	{regexp.MustCompile(`(?i)permission denied|EACCES`), "Permission denied", severityHigh},
	{regexp.MustCompile(`(?i)sqlstate|deadlock found when trying to get lock|could not connect to (?:database|postgres|mysql)`), "DB errors", severityHigh},
	{regexp.MustCompile(`(?i)\b5\d{2}\b.*(?:internal server error|bad gateway|service unavailable|gateway timeout)`), "5xx", severityHigh},
	{regexp.MustCompile(`(?i)certificate (?:has expired|verify failed)|x509:|ssl handshake failed`), "Certificate/SSL", severityMedium},
	{regexp.MustCompile(`(?i)not found|no such file or directory|404`), "Not-found", severityMedium},
	{regexp.MustCompile(`(?i)\berror\b|\bexception\b|\bfailed\b`), "General error", severityMedium},
}

func classifyCatalogueLines(tail string) []catalogueHit {
	var hits []catalogueHit
	for _, ln := range strings.Split(tail, "\n") {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" {
			continue
		}
		for _, p := range logCatalogue {
			if p.re.MatchString(trimmed) {
				hits = append(hits, catalogueHit{category: p.category, severity: p.severity, line: trimmed})
				break // first (most severe) catalogue entry wins per line
			}
		}
	}
	return hits
}

func tailLocalFile(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read log file: %w", err)
	}
	return lastNLines(string(data), n), nil
}

func (c *LogChecker) tailRemote(ctx context.Context, m check.Monitor, s store.LogSettings, n int) (string, error) {
	port := s.SSH.Port
	if port == 0 {
		port = 22
	}

	if s.SSH.Password == "" && s.SSH.PrivateKey == "" && s.SSH.CredentialRef != "" {
		if c.Secrets == nil {
			return "", fmt.Errorf("credential_ref set but no secret resolver is configured")
		}
		secret, err := c.Secrets.Resolve(ctx, s.SSH.CredentialRef)
		if err != nil {
			return "", fmt.Errorf("resolve credential_ref: %w", err)
		}
		s.SSH.Password = secret
	}

	var auth []ssh.AuthMethod
	if s.SSH.Password != "" {
		auth = append(auth, ssh.Password(s.SSH.Password))
	}
	if s.SSH.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(s.SSH.PrivateKey))
		if err != nil {
			return "", fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return "", fmt.Errorf("no SSH authentication method configured")
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	client, err := ssh.Dial("tcp", m.GetTarget()+":"+strconv.Itoa(port), &ssh.ClientConfig{
		User: s.SSH.Username, Auth: auth, HostKeyCallback: ssh.InsecureIgnoreHostKey(), Timeout: timeout,
	})
	if err != nil {
		return "", fmt.Errorf("ssh dial failed: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("session open failed: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	cmd := fmt.Sprintf("tail -n %d %s", n, m.GetTarget())
	if err := session.Run(cmd); err != nil {
		return "", fmt.Errorf("tail command failed: %w", err)
	}
	return out.String(), nil
}

func lastNLines(s string, n int) string {
	lines := bytes.Split([]byte(s), []byte("\n"))
	if len(lines) <= n {
		return s
	}
	return string(bytes.Join(lines[len(lines)-n:], []byte("\n")))
}
