package probe

import "github.com/sentrymon/engine/internal/check"

// DefaultRegistry builds a check.Registry with every built-in checker
// registered, mirroring the monitor types the configuration schema
// allows. secrets may be nil, in which case checkers configured with a
// credential_ref fail at check time rather than at registration.
func DefaultRegistry(commandAllowlist []string, allowPrivateTargets bool, secrets SecretResolver) *check.Registry {
	r := check.NewRegistry()
	r.Register(&URLChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&APIPostChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&SSHChecker{AllowPrivate: allowPrivateTargets, Secrets: secrets})
	r.Register(&PingChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&LogChecker{Secrets: secrets})
	r.Register(&CertificateChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&DockerChecker{Secrets: secrets})
	r.Register(&AWSChecker{Secrets: secrets})
	r.Register(&GCPChecker{Secrets: secrets})
	r.Register(&AzureChecker{Secrets: secrets})
	return r
}
