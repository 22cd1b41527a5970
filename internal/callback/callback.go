// Package callback encodes and parses the inline button payloads attached to
// request notifications. Payloads are pipe-delimited:
//
//	claim|<requestID>|<managerID>
//	updateStatus|<requestID>|<status>
//	complete|<requestID>
package callback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eventdesk/booking-bot/internal/models"
)

type Kind string

const (
	KindClaim        Kind = "claim"
	KindUpdateStatus Kind = "updateStatus"
	KindComplete     Kind = "complete"
)

const sep = "|"

// Action is a decoded button press
type Action struct {
	Kind      Kind
	RequestID int64
	ManagerID int64         // claim only
	Status    models.Status // updateStatus only
}

func EncodeClaim(requestID, managerID int64) string {
	return fmt.Sprintf("%s|%d|%d", KindClaim, requestID, managerID)
}

func EncodeUpdateStatus(requestID int64, status models.Status) string {
	return fmt.Sprintf("%s|%d|%s", KindUpdateStatus, requestID, status)
}

func EncodeComplete(requestID int64) string {
	return fmt.Sprintf("%s|%d", KindComplete, requestID)
}

// IsRequestAction reports whether data looks like a request button payload
func IsRequestAction(data string) bool {
	for _, k := range []Kind{KindClaim, KindUpdateStatus, KindComplete} {
		if strings.HasPrefix(data, string(k)+sep) {
			return true
		}
	}
	return false
}

// Parse decodes callback data into an Action
func Parse(data string) (Action, error) {
	parts := strings.SplitN(data, sep, 3)
	if len(parts) < 2 {
		return Action{}, fmt.Errorf("malformed callback data %q", data)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("invalid request id in %q: %w", data, err)
	}

	action := Action{Kind: Kind(parts[0]), RequestID: id}
	switch action.Kind {
	case KindClaim:
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("claim without manager in %q", data)
		}
		action.ManagerID, err = strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("invalid manager id in %q: %w", data, err)
		}
	case KindUpdateStatus:
		if len(parts) != 3 || parts[2] == "" {
			return Action{}, fmt.Errorf("status update without status in %q", data)
		}
		action.Status = models.Status(parts[2])
	case KindComplete:
	default:
		return Action{}, fmt.Errorf("unknown callback action %q", parts[0])
	}

	return action, nil
}
