package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/safenet"
	"github.com/sentrymon/engine/internal/store"
)

// PingChecker sends ICMP echo requests and reports average round-trip
// time in milliseconds as its metric value.
type PingChecker struct {
	AllowPrivate bool
}

func (c *PingChecker) Type() string { return "ping" }

func (c *PingChecker) Validate(m check.Monitor) error {
	if m.GetTarget() == "" {
		return fmt.Errorf("ping requires a target host")
	}
	return nil
}

func (c *PingChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.PingSettings
	if len(m.GetSettings()) > 0 {
		_ = json.Unmarshal(m.GetSettings(), &s)
	}
	count := s.Count
	if count <= 0 {
		count = 4
	}
	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", m.GetTarget())
	if err != nil || len(addrs) == 0 {
		return check.Errorf("DNS resolution failed: %v", err), nil
	}
	dst := addrs[0]

	if !c.AllowPrivate && safenet.IsPrivateIP(dst) {
		return check.Errorf("blocked: connections to private/reserved IP %s are not allowed", dst), nil
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		conn, err = icmp.ListenPacket("udp4", "0.0.0.0")
		if err != nil {
			return check.Errorf("ICMP listen failed: %v", err), nil
		}
	}
	defer conn.Close()

	var totalRTT time.Duration
	received := 0

	for seq := 1; seq <= count; seq++ {
		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho, Code: 0,
			Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: []byte("sentrymon-ping")},
		}
		wb, err := msg.Marshal(nil)
		if err != nil {
			continue
		}

		var dstAddr net.Addr
		if conn.LocalAddr().Network() == "udp4" {
			dstAddr = &net.UDPAddr{IP: dst}
		} else {
			dstAddr = &net.IPAddr{IP: dst}
		}

		start := time.Now()
		if _, err := conn.WriteTo(wb, dstAddr); err != nil {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(timeout))
		rb := make([]byte, 1500)
		n, _, err := conn.ReadFrom(rb)
		rtt := time.Since(start)
		if err != nil {
			continue
		}

		proto := 1
		if conn.LocalAddr().Network() == "udp4" {
			proto = 58
		}
		rm, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			rm, err = icmp.ParseMessage(1, rb[:n])
			if err != nil {
				continue
			}
		}
		if rm.Type == ipv4.ICMPTypeEchoReply {
			totalRTT += rtt
			received++
		}
	}

	lossPct := float64(count-received) / float64(count) * 100

	if received == 0 {
		return &check.Result{
			Success: true, Status: check.StatusAlarm, Value: floatZero(),
			Message:   fmt.Sprintf("no echo replies received from %s (%d/%d packets sent)", dst, 0, count),
			Timestamp: time.Now(),
		}, nil
	}

	avgMS := float64(totalRTT.Milliseconds()) / float64(received)
	elapsed := totalRTT.Milliseconds() / int64(received)

	// A received fraction below 50% forces an alarm regardless of RTT;
	// otherwise the average RTT is classified against the monitor's
	// configured thresholds like any other latency metric.
	var status check.Status
	if received*2 < count {
		status = check.StatusAlarm
	} else {
		status = check.Classify(avgMS, m.GetThresholds())
	}

	msg := fmt.Sprintf("%d/%d packets received, avg %.1fms", received, count, avgMS)
	if received*2 < count {
		msg = fmt.Sprintf("High packet loss: %.0f%%", lossPct)
	}

	return &check.Result{
		Success: true, Status: status, Value: &avgMS,
		Message:      msg,
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}
