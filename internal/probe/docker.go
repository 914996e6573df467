package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

// DockerChecker enumerates containers matching a name/id/image filter,
// local or over SSH, and aggregates their running/health/restart/CPU/
// memory state into a single monitor result.
type DockerChecker struct {
	Secrets SecretResolver
}

func (c *DockerChecker) Type() string { return "docker" }

func (c *DockerChecker) Validate(m check.Monitor) error {
	var s store.DockerSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid docker settings: %w", err)
		}
	}
	if s.Name == "" && s.ContainerID == "" && s.Image == "" && m.GetTarget() == "" {
		return fmt.Errorf("docker checks require a container name, id, image, or target")
	}
	if s.SSHHost != "" && s.SSH.Username == "" {
		return fmt.Errorf("docker checks against ssh_host require ssh settings with a username")
	}
	return nil
}

// containerSample is the common shape gathered by both the local
// Engine API path and the remote SSH CLI path.
type containerSample struct {
	ID           string
	Name         string
	Running      bool
	Health       string
	RestartCount int
	CPUPercent   float64
	MemPercent   float64
}

func (c *DockerChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.DockerSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var samples []containerSample
	var err error
	if s.SSHHost != "" {
		samples, err = c.listRemote(checkCtx, m, s)
	} else {
		samples, err = c.listLocal(checkCtx, s, m.GetTarget())
	}
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: err.Error(), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	if len(samples) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no containers matched the configured filter", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	criticalCPU := s.CriticalCPUPct
	if criticalCPU == 0 {
		criticalCPU = 90
	}
	warningCPU := s.WarningCPUPct
	if warningCPU == 0 {
		warningCPU = 75
	}
	criticalMem := s.CriticalMemPct
	if criticalMem == 0 {
		criticalMem = 90
	}
	warningMem := s.WarningMemPct
	if warningMem == 0 {
		warningMem = 75
	}

	status := check.StatusOK
	var reasons []string
	var maxCPU, maxMem float64
	containers := make([]map[string]any, 0, len(samples))
	for _, cs := range samples {
		if cs.CPUPercent > maxCPU {
			maxCPU = cs.CPUPercent
		}
		if cs.MemPercent > maxMem {
			maxMem = cs.MemPercent
		}
		containers = append(containers, map[string]any{
			"id":            cs.ID,
			"name":          cs.Name,
			"running":       cs.Running,
			"health":        cs.Health,
			"restart_count": cs.RestartCount,
			"cpu_pct":       cs.CPUPercent,
			"mem_pct":       cs.MemPercent,
		})

		switch {
		case !cs.Running:
			status = check.StatusAlarm
			reasons = append(reasons, fmt.Sprintf("%s is not running", cs.Name))
		case cs.Health == "unhealthy":
			status = check.StatusAlarm
			reasons = append(reasons, fmt.Sprintf("%s is unhealthy", cs.Name))
		case cs.CPUPercent >= criticalCPU:
			status = check.StatusAlarm
			reasons = append(reasons, fmt.Sprintf("%s cpu %.1f%%", cs.Name, cs.CPUPercent))
		case cs.MemPercent >= criticalMem:
			status = check.StatusAlarm
			reasons = append(reasons, fmt.Sprintf("%s mem %.1f%%", cs.Name, cs.MemPercent))
		case s.RestartLimit > 0 && cs.RestartCount >= s.RestartLimit:
			status = check.StatusAlarm
			reasons = append(reasons, fmt.Sprintf("%s restarted %d times", cs.Name, cs.RestartCount))
		case status != check.StatusAlarm && cs.CPUPercent >= warningCPU:
			status = check.StatusWarning
			reasons = append(reasons, fmt.Sprintf("%s cpu %.1f%%", cs.Name, cs.CPUPercent))
		case status != check.StatusAlarm && cs.MemPercent >= warningMem:
			status = check.StatusWarning
			reasons = append(reasons, fmt.Sprintf("%s mem %.1f%%", cs.Name, cs.MemPercent))
		}
	}

	msg := fmt.Sprintf("%d container(s) matched, max cpu %.1f%%, max mem %.1f%%", len(samples), maxCPU, maxMem)
	if len(reasons) > 0 {
		msg = strings.Join(reasons, "; ")
	}

	value := maxCPU
	return &check.Result{
		Success: true, Status: status, Value: &value,
		Message:      msg,
		Metadata:     map[string]any{"containers": containers},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}

func (c *DockerChecker) dockerClient(s store.DockerSettings) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if s.Host != "" {
		opts = append(opts, client.WithHost(s.Host))
	} else if s.SocketPath != "" {
		opts = append(opts, client.WithHost("unix://"+s.SocketPath))
	}
	return client.NewClientWithOpts(opts...)
}

func dockerFilterArgs(s store.DockerSettings, fallbackTarget string) filters.Args {
	args := filters.NewArgs()
	if s.Name != "" {
		args.Add("name", s.Name)
	}
	if s.ContainerID != "" {
		args.Add("id", s.ContainerID)
	}
	if s.Image != "" {
		args.Add("ancestor", s.Image)
	}
	if args.Len() == 0 && fallbackTarget != "" {
		args.Add("name", fallbackTarget)
	}
	return args
}

func (c *DockerChecker) listLocal(ctx context.Context, s store.DockerSettings, fallbackTarget string) ([]containerSample, error) {
	cli, err := c.dockerClient(s)
	if err != nil {
		return nil, fmt.Errorf("docker client init failed: %w", err)
	}
	defer cli.Close()

	summaries, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: dockerFilterArgs(s, fallbackTarget)})
	if err != nil {
		return nil, fmt.Errorf("container list failed: %w", err)
	}

	samples := make([]containerSample, 0, len(summaries))
	for _, summary := range summaries {
		inspect, err := cli.ContainerInspect(ctx, summary.ID)
		if err != nil {
			continue
		}

		sample := containerSample{
			ID:           summary.ID,
			Name:         containerName(summary.Names),
			Running:      inspect.State.Running,
			RestartCount: inspect.RestartCount,
		}
		if inspect.State.Health != nil {
			sample.Health = inspect.State.Health.Status
		}

		if inspect.State.Running {
			if statsResp, err := cli.ContainerStatsOneShot(ctx, summary.ID); err == nil {
				var stats container.StatsResponse
				if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
					sample.CPUPercent = dockerCPUPercent(stats)
					sample.MemPercent = dockerMemPercent(stats)
				}
				statsResp.Body.Close()
			}
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func dockerCPUPercent(stats container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if sysDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	online := float64(stats.CPUStats.OnlineCPUs)
	if online == 0 {
		online = 1
	}
	return (cpuDelta / sysDelta) * online * 100.0
}

func dockerMemPercent(stats container.StatsResponse) float64 {
	usage := float64(stats.MemoryStats.Usage)
	if v, ok := stats.MemoryStats.Stats["inactive_file"]; ok && float64(v) < usage {
		usage -= float64(v)
	}
	limit := float64(stats.MemoryStats.Limit)
	if limit <= 0 {
		return 0
	}
	return usage / limit * 100.0
}

func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

// listRemote drives the docker CLI on a remote host over SSH, for
// fleets where the monitoring engine has no direct Engine API access.
func (c *DockerChecker) listRemote(ctx context.Context, m check.Monitor, s store.DockerSettings) ([]containerSample, error) {
	port := s.SSH.Port
	if port == 0 {
		port = 22
	}
	if s.SSH.Password == "" && s.SSH.PrivateKey == "" && s.SSH.CredentialRef != "" {
		if c.Secrets == nil {
			return nil, fmt.Errorf("credential_ref set but no secret resolver is configured")
		}
		secret, err := c.Secrets.Resolve(ctx, s.SSH.CredentialRef)
		if err != nil {
			return nil, fmt.Errorf("resolve credential_ref: %w", err)
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
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH authentication method configured")
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	client, err := ssh.Dial("tcp", net.JoinHostPort(s.SSHHost, strconv.Itoa(port)), &ssh.ClientConfig{
		User: s.SSH.Username, Auth: auth, HostKeyCallback: ssh.InsecureIgnoreHostKey(), Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial failed: %w", err)
	}
	defer client.Close()

	ids, err := dockerRunRemote(client, dockerPsCommand(s))
	if err != nil {
		return nil, fmt.Errorf("docker ps failed: %w", err)
	}
	var samples []containerSample
	for _, id := range strings.Fields(ids) {
		out, err := dockerRunRemote(client, fmt.Sprintf("docker inspect --format '{{json .}}' %s", id))
		if err != nil {
			continue
		}
		var inspect struct {
			Name  string `json:"Name"`
			State struct {
				Running bool `json:"Running"`
				Health  *struct {
					Status string `json:"Status"`
				} `json:"Health"`
			} `json:"State"`
			RestartCount int `json:"RestartCount"`
		}
		if json.Unmarshal([]byte(out), &inspect) != nil {
			continue
		}

		sample := containerSample{
			ID:           id,
			Name:         strings.TrimPrefix(inspect.Name, "/"),
			Running:      inspect.State.Running,
			RestartCount: inspect.RestartCount,
		}
		if inspect.State.Health != nil {
			sample.Health = inspect.State.Health.Status
		}

		if statsOut, err := dockerRunRemote(client, fmt.Sprintf("docker stats --no-stream --format '{{.CPUPerc}} {{.MemPerc}}' %s", id)); err == nil {
			fields := strings.Fields(statsOut)
			if len(fields) == 2 {
				sample.CPUPercent = parseDockerPercent(fields[0])
				sample.MemPercent = parseDockerPercent(fields[1])
			}
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func dockerPsCommand(s store.DockerSettings) string {
	var b strings.Builder
	b.WriteString("docker ps -a --format '{{.ID}}'")
	if s.Name != "" {
		fmt.Fprintf(&b, " --filter name=%s", shellQuote(s.Name))
	}
	if s.ContainerID != "" {
		fmt.Fprintf(&b, " --filter id=%s", shellQuote(s.ContainerID))
	}
	if s.Image != "" {
		fmt.Fprintf(&b, " --filter ancestor=%s", shellQuote(s.Image))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func dockerRunRemote(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("session open failed: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	if err := session.Run(cmd); err != nil {
		return "", fmt.Errorf("command failed: %w", err)
	}
	return out.String(), nil
}

func parseDockerPercent(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0
	}
	return v
}

func floatZero() *float64 {
	v := 0.0
	return &v
}
