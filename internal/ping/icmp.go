package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"meshping/internal/models"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

var payload = []byte("meshping")

// ICMPPinger sends raw ICMP echo requests. It needs root or CAP_NET_RAW.
type ICMPPinger struct {
	id  int
	seq atomic.Uint32
}

// NewICMP creates an ICMPPinger identified by the current process id
func NewICMP() *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

// Ping sends a single echo request and waits for the matching reply
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) (models.PingResult, error) {
	result := models.PingResult{Timestamp: time.Now(), Addr: addr}

	ip := net.ParseIP(addr)
	if ip == nil {
		ipAddr, err := net.DefaultResolver.LookupIPAddr(ctx, addr)
		if err != nil || len(ipAddr) == 0 {
			return result, fmt.Errorf("resolve target: %w", err)
		}
		ip = ipAddr[0].IP
	}

	network, listen, proto := "ip4:icmp", "0.0.0.0", protocolICMP
	var reqType, replyType icmp.Type = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	if ip.To4() == nil {
		network, listen, proto = "ip6:ipv6-icmp", "::", protocolIPv6ICMP
		reqType, replyType = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
	}

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return result, fmt.Errorf("icmp listen requires root or CAP_NET_RAW: %w", err)
		}
		return result, fmt.Errorf("icmp listen: %w", err)
	}
	defer conn.Close()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: reqType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: payload,
		},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return result, fmt.Errorf("icmp marshal: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	start := time.Now()
	if _, err := conn.WriteTo(b, &net.IPAddr{IP: ip}); err != nil {
		return result, fmt.Errorf("icmp write: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline passed without our reply.
			result.ErrorMessage = err.Error()
			return result, nil
		}
		elapsed := time.Since(start)

		recv, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil || recv.Type != replyType {
			continue
		}
		if echo, ok := recv.Body.(*icmp.Echo); ok && echo.ID == p.id && echo.Seq == seq {
			result.Success = true
			result.RTT = float64(elapsed) / float64(time.Millisecond)
			return result, nil
		}
	}
}
