package reconcile

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"meshping/internal/models"
)

// ErrMalformed marks a submission that failed validation; nothing from it
// has been applied.
var ErrMalformed = errors.New("malformed submission")

func malformed(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}

// ParsePeerSubmission decodes {"targets": [{"name", "addr", "local"}, ...]}.
// Every descriptor is validated before any is returned: one bad descriptor
// rejects the whole submission.
func ParsePeerSubmission(body []byte) ([]models.PeerTarget, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return nil, malformed("invalid JSON body")
	}

	list, ok := payload["targets"].([]interface{})
	if !ok {
		return nil, malformed("need targets as a list")
	}

	peers := make([]models.PeerTarget, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, malformed("targets must be dicts")
		}
		name, nameOK := obj["name"].(string)
		addr, addrOK := obj["addr"].(string)
		local, localOK := obj["local"].(bool)
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if !nameOK || name == "" || !addrOK || addr == "" || !localOK {
			return nil, malformed("required field missing in target")
		}
		peers = append(peers, models.PeerTarget{Name: name, Addr: addr, Local: local})
	}
	return peers, nil
}
