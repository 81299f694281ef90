package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"meshping/internal/models"
)

// Pinger runs the system ping binary once per probe
type Pinger struct {
	command string
}

// New creates a new Pinger
func New() *Pinger {
	return &Pinger{command: "ping"}
}

// Ping executes a ping to the address and returns the result. A probe that
// gets no reply is a result with Success false; an error means no probe
// could be sent at all.
func (p *Pinger) Ping(ctx context.Context, addr string, timeout time.Duration) (models.PingResult, error) {
	result := models.PingResult{
		Timestamp: time.Now(),
		Addr:      addr,
	}

	cmd := exec.CommandContext(ctx, p.command, pingArgs(runtime.GOOS, addr, timeout)...)
	output, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.RTT = parsePingOutput(string(output))
	case errors.As(err, &exitErr):
		result.ErrorMessage = err.Error()
	default:
		return result, fmt.Errorf("run %s: %w", p.command, err)
	}

	return result, nil
}

// pingArgs builds the platform-specific ping command line
func pingArgs(goos, addr string, timeout time.Duration) []string {
	var args []string
	if goos == "windows" {
		args = []string{"-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds()))}
	} else {
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		args = []string{"-c", "1", "-W", strconv.Itoa(secs)}
	}
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil && goos != "windows" {
		args = append(args, "-6")
	}
	return append(args, addr)
}

var rttPatterns = []*regexp.Regexp{
	regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`),
	regexp.MustCompile(`time[=<]([0-9.]+)ms`),
	regexp.MustCompile(`round-trip min/avg/max = [0-9.]+/([0-9.]+)/`),
}

// parsePingOutput parses RTT from ping output
func parsePingOutput(output string) float64 {
	// Linux/Mac: "time=XX.X ms"
	// Windows: "time=XXms" or "time<1ms"
	for _, re := range rttPatterns {
		matches := re.FindStringSubmatch(output)
		if len(matches) > 1 {
			if rtt, err := strconv.ParseFloat(matches[1], 64); err == nil {
				return rtt
			}
		}
	}

	return 0
}
