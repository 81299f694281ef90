package ping

import (
	"context"
	"os/exec"
	"reflect"
	"testing"
	"time"
)

func TestParsePingOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected float64
	}{
		{
			name:     "macOS individual response",
			output:   "64 bytes from 8.8.8.8: icmp_seq=0 ttl=118 time=44.347 ms",
			expected: 44.347,
		},
		{
			name:     "macOS summary line",
			output:   "round-trip min/avg/max/stddev = 44.347/44.347/44.347/0.000 ms",
			expected: 44.347,
		},
		{
			name:     "Linux IPv6 response",
			output:   "64 bytes from 2001:4860:4860::8888: icmp_seq=1 ttl=117 time=9.81 ms",
			expected: 9.81,
		},
		{
			name:     "BusyBox summary line",
			output:   "round-trip min/avg/max = 12.3/12.3/12.3 ms",
			expected: 12.3,
		},
		{
			name:     "Windows response",
			output:   "Reply from 8.8.8.8: bytes=32 time=15ms TTL=118",
			expected: 15,
		},
		{
			name:     "Windows sub-millisecond",
			output:   "Reply from 8.8.8.8: bytes=32 time<1ms TTL=118",
			expected: 1,
		},
		{
			name:     "No match",
			output:   "ping: unknown host example.invalid",
			expected: 0,
		},
		{
			name:     "Empty output",
			output:   "",
			expected: 0,
		},
		{
			name: "Multiple lines with macOS output",
			output: `PING 8.8.8.8 (8.8.8.8): 56 data bytes
64 bytes from 8.8.8.8: icmp_seq=0 ttl=118 time=44.347 ms

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 1 packets received, 0.0% packet loss
round-trip min/avg/max/stddev = 44.347/44.347/44.347/0.000 ms`,
			expected: 44.347,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parsePingOutput(tt.output)
			if result != tt.expected {
				t.Errorf("parsePingOutput(%q) = %v, want %v", tt.output, result, tt.expected)
			}
		})
	}
}

func TestPingArgs(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		addr    string
		timeout time.Duration
		want    []string
	}{
		{"linux v4", "linux", "8.8.8.8", 5 * time.Second, []string{"-c", "1", "-W", "5", "8.8.8.8"}},
		{"linux v6", "linux", "2001:db8::1", 2 * time.Second, []string{"-c", "1", "-W", "2", "-6", "2001:db8::1"}},
		{"linux sub-second timeout", "linux", "example.com", 300 * time.Millisecond, []string{"-c", "1", "-W", "1", "example.com"}},
		{"windows", "windows", "8.8.8.8", 1500 * time.Millisecond, []string{"-n", "1", "-w", "1500", "8.8.8.8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pingArgs(tt.goos, tt.addr, tt.timeout)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pingArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPingerPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ping integration test in short mode")
	}

	if _, err := exec.LookPath("ping"); err != nil {
		t.Skip("ping binary not available on PATH")
	}

	pinger := New()

	result, err := pinger.Ping(context.Background(), "127.0.0.1", 5*time.Second)
	if err != nil {
		t.Skipf("skipping due to unexpected ping failure: %v", err)
	}

	t.Logf("Ping result: Success=%v, RTT=%v, Error=%s", result.Success, result.RTT, result.ErrorMessage)

	if !result.Success {
		t.Skipf("loopback ping failed in this environment: %s", result.ErrorMessage)
	}

	if result.Addr != "127.0.0.1" {
		t.Errorf("Expected addr to be '127.0.0.1', got %v", result.Addr)
	}
}

func TestPingerMissingBinary(t *testing.T) {
	pinger := &Pinger{command: "meshping-no-such-binary"}

	_, err := pinger.Ping(context.Background(), "127.0.0.1", time.Second)
	if err == nil {
		t.Fatalf("expected an error when the ping binary is missing")
	}
}
