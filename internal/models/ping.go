package models

import "time"

// PingResult represents a single probe against an address
type PingResult struct {
	Timestamp    time.Time `json:"timestamp"`
	Addr         string    `json:"addr"`
	Success      bool      `json:"success"`
	RTT          float64   `json:"rtt_ms"` // milliseconds
	ErrorMessage string    `json:"error_message"`
}
