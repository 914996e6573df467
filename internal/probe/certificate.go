package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/safenet"
	"github.com/sentrymon/engine/internal/store"
)

// CertificateChecker performs a TLS handshake and reports the peer
// certificate's days-until-expiry as its metric value.
type CertificateChecker struct {
	AllowPrivate bool
}

func (c *CertificateChecker) Type() string { return "certificate" }

func (c *CertificateChecker) Validate(m check.Monitor) error {
	if m.GetTarget() == "" {
		return fmt.Errorf("certificate checks require a target host")
	}
	return nil
}

func (c *CertificateChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.CertificateSettings
	if len(m.GetSettings()) > 0 {
		_ = json.Unmarshal(m.GetSettings(), &s)
	}

	host := s.Hostname
	if host == "" {
		host = m.GetTarget()
	}
	port := s.Port
	if port == 0 {
		port = 443
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if h, _, err := net.SplitHostPort(addr); err == nil && !c.AllowPrivate {
		if ip := net.ParseIP(h); ip != nil && safenet.IsPrivateIP(ip) {
			return check.Errorf("blocked: connections to private/reserved IP %s are not allowed", ip), nil
		}
	}

	baseDial := (&net.Dialer{Timeout: timeout, Control: safenet.MaybeDialControl(c.AllowPrivate)}).DialContext
	dial := dialerFunc(m.GetProxyURL(), baseDial)

	start := time.Now()
	rawConn, err := dial(dialCtx, "tcp", addr)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("connection failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	// InsecureSkipVerify hands control of validity to this checker: the
	// whole point of the check is to report on expired, self-signed, and
	// hostname-mismatched certs, which a verifying handshake would refuse
	// to complete.
	tlsConn := tls.Client(rawConn, &tls.Config{ServerName: host, InsecureSkipVerify: true})
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		rawConn.Close()
		elapsed := time.Since(start).Milliseconds()
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("TLS handshake failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	defer tlsConn.Close()
	elapsed := time.Since(start).Milliseconds()

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no certificates presented", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	cert := state.PeerCertificates[0]
	daysUntilExpiry := time.Until(cert.NotAfter).Hours() / 24

	selfSigned := bytes.Equal(cert.RawIssuer, cert.RawSubject)
	hostnameMatch := cert.VerifyHostname(host) == nil
	chainExpired := false
	for _, peer := range state.PeerCertificates {
		if time.Now().After(peer.NotAfter) {
			chainExpired = true
			break
		}
	}

	warningDays := float64(s.WarningThresholdDays)
	if warningDays == 0 {
		warningDays = 30
	}
	alarmDays := float64(s.AlarmThresholdDays)
	if alarmDays == 0 {
		alarmDays = 7
	}
	status := check.Classify(daysUntilExpiry, check.Thresholds{LowWarning: &warningDays, LowAlarm: &alarmDays})

	value := daysUntilExpiry
	return &check.Result{
		Success: true, Status: status, Value: &value,
		Message: fmt.Sprintf("cert for %s expires in %.0f days (%s)", host, daysUntilExpiry, cert.NotAfter.Format("2006-01-02")),
		Metadata: map[string]any{
			"issuer":         cert.Issuer.String(),
			"subject_cn":     cert.Subject.CommonName,
			"sans":           cert.DNSNames,
			"serial":         cert.SerialNumber.String(),
			"sig_alg":        cert.SignatureAlgorithm.String(),
			"self_signed":    selfSigned,
			"hostname_match": hostnameMatch,
			"chain_expired":  chainExpired,
		},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}
