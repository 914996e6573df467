package store

// Per-type settings blocks, embedded as Monitor.Settings (JSON) and
// unmarshaled by the owning checker in internal/probe. Mirrors the
// teacher's storage.HTTPSettings / storage.DockerSettings pattern,
// extended to every monitor type spec.md §3 names.

type URLSettings struct {
	PositivePattern string            `json:"positive_pattern,omitempty"`
	NegativePattern string            `json:"negative_pattern,omitempty"`
	StatusCodes     []int             `json:"status_codes,omitempty"` // default {200,201,204,301,302,303,304}
	Headers         map[string]string `json:"headers,omitempty"`
	SkipTLSVerify   bool              `json:"skip_tls_verify,omitempty"`
}

type APIPostSettings struct {
	PostBody        string            `json:"post_body"`
	PositivePattern string            `json:"positive_pattern,omitempty"`
	NegativePattern string            `json:"negative_pattern,omitempty"`
	StatusCodes     []int             `json:"status_codes,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

type SSHSettings struct {
	Port           int    `json:"port,omitempty"` // default 22
	Username       string `json:"username"`
	Password       string `json:"password,omitempty"`
	PrivateKey     string `json:"private_key,omitempty"`
	Passphrase     string `json:"passphrase,omitempty"`
	Command        string `json:"command"`
	PositivePattern string `json:"positive_pattern,omitempty"`
	NegativePattern string `json:"negative_pattern,omitempty"`
	CredentialRef   string `json:"credential_ref,omitempty"` // op:// reference resolved via 1Password
}

type PingSettings struct {
	Count   int `json:"count,omitempty"`   // default 4
	Timeout int `json:"timeout,omitempty"` // per-packet seconds
}

type LogSettings struct {
	TailLines       int      `json:"tail_lines,omitempty"` // default 100
	Remote          bool     `json:"remote,omitempty"`
	SSH             SSHSettings `json:"ssh,omitempty"`
	UserPatterns    []string `json:"user_patterns,omitempty"`
}

type CertificateSettings struct {
	Hostname            string `json:"hostname"`
	Port                int    `json:"port,omitempty"` // default 443
	WarningThresholdDays int   `json:"warning_threshold_days,omitempty"` // default 30
	AlarmThresholdDays   int   `json:"alarm_threshold_days,omitempty"`   // default 7
}

type DockerSettings struct {
	Name              string `json:"name,omitempty"`
	ContainerID       string `json:"id,omitempty"`
	Image             string `json:"image,omitempty"`
	SocketPath        string `json:"socket_path,omitempty"`
	Host              string `json:"host,omitempty"` // tcp daemon
	SSHHost           string `json:"ssh_host,omitempty"`
	SSH               SSHSettings `json:"ssh,omitempty"` // auth for the docker CLI over SSH, when SSHHost is set
	CriticalCPUPct    float64 `json:"critical_cpu_pct,omitempty"`
	WarningCPUPct     float64 `json:"warning_cpu_pct,omitempty"`
	CriticalMemPct    float64 `json:"critical_mem_pct,omitempty"`
	WarningMemPct     float64 `json:"warning_mem_pct,omitempty"`
	RestartLimit      int     `json:"restart_limit,omitempty"`
}

type AWSSettings struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	ResourceID      string `json:"resource_id"`
	Service         string `json:"service,omitempty"` // ec2, rds, lambda — default ec2
	Metric          string `json:"metric,omitempty"`  // default CPUUtilization
	CredentialRef   string `json:"credential_ref,omitempty"` // op:// reference for secret_access_key
}

type GCPSettings struct {
	ProjectID          string `json:"project_id"`
	ServiceAccountJSON string `json:"service_account_json,omitempty"`
	ResourceID         string `json:"resource_id"`
	MetricType         string `json:"metric_type,omitempty"` // default compute.googleapis.com/instance/cpu/utilization
	CredentialRef      string `json:"credential_ref,omitempty"` // op:// reference for service_account_json
}

type AzureSettings struct {
	SubscriptionID string `json:"subscription_id"`
	TenantID       string `json:"tenant_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	ResourceID     string `json:"resource_id"`
	MetricName     string `json:"metric_name,omitempty"` // default Percentage CPU
	CredentialRef  string `json:"credential_ref,omitempty"` // op:// reference for client_secret
}
