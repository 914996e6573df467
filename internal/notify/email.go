package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sentrymon/engine/internal/store"
)

// SMTPConfig holds the process-wide outgoing-mail settings. Unlike the
// teacher's per-channel EmailSettings, there is one mail relay for the
// whole process — recipients come from each monitor's contact list.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string // none, starttls (default), smtps
}

// EmailSink sends alert notifications over SMTP.
type EmailSink struct {
	cfg SMTPConfig
}

func NewEmailSink(cfg SMTPConfig) *EmailSink {
	if cfg.Port == 0 {
		switch cfg.TLSMode {
		case "smtps":
			cfg.Port = 465
		case "none":
			cfg.Port = 25
		default:
			cfg.Port = 587
		}
	}
	return &EmailSink{cfg: cfg}
}

func (s *EmailSink) Send(ctx context.Context, recipient store.Contact, ev Event) Outcome {
	if recipient.Email == "" {
		return Outcome{Err: fmt.Errorf("contact has no email address")}
	}

	subject := sanitizeHeader(subjectFor(ev))
	body := bodyFor(ev)
	msg := buildMessage(s.cfg.From, recipient.Email, subject, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var err error
	switch s.cfg.TLSMode {
	case "smtps":
		err = s.sendSMTPS(addr, recipient.Email, msg)
	case "none":
		err = s.sendPlain(addr, recipient.Email, msg)
	default:
		err = s.sendSTARTTLS(addr, recipient.Email, msg)
	}
	if err != nil {
		return Outcome{Sent: false, Err: err}
	}
	return Outcome{Sent: true, MessageID: fmt.Sprintf("%s-%d", ev.Stage, time.Now().UnixNano())}
}

func (s *EmailSink) auth() smtp.Auth {
	if s.cfg.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
}

func (s *EmailSink) sendPlain(addr, to string, msg []byte) error {
	return smtp.SendMail(addr, s.auth(), s.cfg.From, []string{to}, msg)
}

func (s *EmailSink) sendSTARTTLS(addr, to string, msg []byte) error {
	return smtp.SendMail(addr, s.auth(), s.cfg.From, []string{to}, msg)
}

func (s *EmailSink) sendSMTPS(addr, to string, msg []byte) error {
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("smtps dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth := s.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func subjectFor(ev Event) string {
	switch ev.Stage {
	case "open":
		return fmt.Sprintf("[%s] %s", strings.ToUpper(ev.Alert.Severity), ev.Monitor.Name)
	case "upgrade":
		return fmt.Sprintf("[ALARM] %s escalated", ev.Monitor.Name)
	case "recover":
		return fmt.Sprintf("[RECOVERED] %s", ev.Monitor.Name)
	case "reminder":
		return fmt.Sprintf("[REMINDER] %s still in alarm", ev.Monitor.Name)
	default:
		return fmt.Sprintf("[%s] %s", ev.Stage, ev.Monitor.Name)
	}
}

func bodyFor(ev Event) string {
	a := ev.Alert
	switch ev.Stage {
	case "recover":
		duration := "unknown"
		if a.RecoveredAt != nil {
			duration = formatDuration(a.RecoveredAt.Sub(a.TriggeredAt))
		}
		return fmt.Sprintf(
			"Monitor %q recovered.\nTriggered at: %s\nRecovered at: %s\nDuration: %s\n%s",
			ev.Monitor.Name, a.TriggeredAt.Format(time.RFC3339), timeString(a.RecoveredAt), duration, a.Message,
		)
	default:
		return fmt.Sprintf(
			"Monitor %q: %s\nSeverity: %s\nCurrent value: %s\nThreshold: %s\nConsecutive failures: %d\nTriggered at: %s\n%s",
			ev.Monitor.Name, ev.Stage, a.Severity, floatString(a.CurrentValue), floatString(a.ThresholdValue),
			a.ConsecutiveFailures, a.TriggeredAt.Format(time.RFC3339), a.Message,
		)
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader strips characters that would allow header injection
// via a crafted monitor name or alert message.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

func timeString(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}

func floatString(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
