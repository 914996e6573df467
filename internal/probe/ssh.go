package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/safenet"
	"github.com/sentrymon/engine/internal/store"
)

// SSHChecker opens an SSH session, runs a command, and checks its
// output against an optional pattern. Value is the command's wall
// time in milliseconds.
type SSHChecker struct {
	AllowPrivate bool
	Secrets      SecretResolver
}

func (c *SSHChecker) Type() string { return "ssh" }

func (c *SSHChecker) Validate(m check.Monitor) error {
	var s store.SSHSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid ssh settings: %w", err)
		}
	}
	if s.Username == "" {
		return fmt.Errorf("ssh settings require a username")
	}
	if s.Command == "" {
		return fmt.Errorf("ssh settings require a command")
	}
	if s.Password == "" && s.PrivateKey == "" && s.CredentialRef == "" {
		return fmt.Errorf("ssh settings require password, private_key, or credential_ref")
	}
	if s.PositivePattern != "" {
		if _, err := regexp.Compile("(?i)" + s.PositivePattern); err != nil {
			return fmt.Errorf("invalid positive_pattern: %w", err)
		}
	}
	if s.NegativePattern != "" {
		if _, err := regexp.Compile("(?i)" + s.NegativePattern); err != nil {
			return fmt.Errorf("invalid negative_pattern: %w", err)
		}
	}
	return nil
}

func (c *SSHChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.SSHSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	port := s.Port
	if port == 0 {
		port = 22
	}

	if s.Password == "" && s.PrivateKey == "" && s.CredentialRef != "" {
		if c.Secrets == nil {
			return check.Errorf("credential_ref set but no secret resolver is configured"), nil
		}
		secret, err := c.Secrets.Resolve(ctx, s.CredentialRef)
		if err != nil {
			return check.Errorf("resolve credential_ref: %v", err), nil
		}
		s.Password = secret
	}

	var auth []ssh.AuthMethod
	if s.Password != "" {
		auth = append(auth, ssh.Password(s.Password))
	}
	if s.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if s.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(s.PrivateKey), []byte(s.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(s.PrivateKey))
		}
		if err != nil {
			return check.Errorf("parse private key: %v", err), nil
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return check.Errorf("no SSH authentication method configured"), nil
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	clientCfg := &ssh.ClientConfig{
		User:            s.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // monitors reach arbitrary fleet hosts with no pinned key
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(m.GetTarget(), strconv.Itoa(port))

	if host, _, err := net.SplitHostPort(addr); err == nil && !c.AllowPrivate {
		if ip := net.ParseIP(host); ip != nil && safenet.IsPrivateIP(ip) {
			return check.Errorf("blocked: connections to private/reserved IP %s are not allowed", ip), nil
		}
	}

	start := time.Now()
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("dial failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		elapsed := time.Since(start).Milliseconds()
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("ssh handshake failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("session open failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(s.Command)
	elapsed := time.Since(start).Milliseconds()
	if runErr != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("command failed: %v: %s", runErr, stderr.String()), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	output := stdout.String()
	if s.PositivePattern != "" {
		re, err := regexp.Compile("(?i)" + s.PositivePattern)
		if err != nil {
			return check.Errorf("invalid positive_pattern: %v", err), nil
		}
		if !re.MatchString(output) {
			return &check.Result{Success: false, Status: check.StatusError, Message: "positive_pattern did not match command output", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
		}
	}
	if s.NegativePattern != "" {
		re, err := regexp.Compile("(?i)" + s.NegativePattern)
		if err != nil {
			return check.Errorf("invalid negative_pattern: %v", err), nil
		}
		if re.MatchString(output) {
			return &check.Result{Success: false, Status: check.StatusError, Message: "negative_pattern matched command output", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
		}
	}

	// Commands that emit "Label: N%" pairs (the common system-metrics
	// probe shape) report the first of cpu/memory/disk found as the
	// primary value and the rest as metadata; everything else falls
	// back to wall time.
	metrics := parseMetricPercentages(output)
	for _, key := range []string{"cpu", "memory", "disk"} {
		primary, ok := metrics[key]
		if !ok {
			continue
		}
		metadata := map[string]any{}
		for k, v := range metrics {
			metadata[k] = v
		}
		return &check.Result{Success: true, Value: &primary, Message: strings.TrimSpace(output), ResponseTime: &elapsed, Metadata: metadata, Timestamp: time.Now()}, nil
	}

	value := float64(elapsed)
	return &check.Result{Success: true, Value: &value, Message: fmt.Sprintf("command succeeded in %dms", elapsed), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
}

var metricPercentRe = regexp.MustCompile(`(?i)(cpu|memory|disk)\s*:\s*(\d+(?:\.\d+)?)\s*%`)

// parseMetricPercentages extracts "CPU: 91% Memory: 40% Disk: 55%"-style
// output into a lowercase-keyed map of percentages.
func parseMetricPercentages(output string) map[string]float64 {
	matches := metricPercentRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]float64, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out[strings.ToLower(m[1])] = v
	}
	return out
}
