package models

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a target or address is not known.
var ErrNotFound = errors.New("target not found")

// KeySeparator separates the display name from the address in a canonical key.
const KeySeparator = "@"

// DisplayNameLen is the maximum name length shown in target listings.
const DisplayNameLen = 24

// Target is a monitored endpoint
type Target struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"`
	Local bool   `json:"local"`
}

// Key returns the canonical name@addr key of the target.
func (t Target) Key() string {
	return TargetKey(t.Name, t.Addr)
}

// TargetKey builds the canonical key for a name and address.
func TargetKey(name, addr string) string {
	return name + KeySeparator + addr
}

// SplitTargetKey splits a canonical key into name and address. The address
// is everything after the last separator.
func SplitTargetKey(key string) (name, addr string, ok bool) {
	idx := strings.LastIndex(key, KeySeparator)
	if idx < 0 {
		return "", "", false
	}
	name, addr = key[:idx], key[idx+len(KeySeparator):]
	if name == "" || addr == "" {
		return "", "", false
	}
	return name, addr, true
}

// PeerTarget is one descriptor of a peer submission.
type PeerTarget struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"`
	Local bool   `json:"local"`
}
