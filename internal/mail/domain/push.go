package domain

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// PushNotification is the Gmail change payload carried by Pub/Sub.
type PushNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// ParseNotification reads the JSON Gmail publishes. historyId arrives as a
// number or as a quoted string depending on the publisher.
func ParseNotification(raw []byte) (PushNotification, error) {
	var wire struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return PushNotification{}, err
	}
	if wire.EmailAddress == "" {
		return PushNotification{}, errors.New("notification without emailAddress")
	}

	n := PushNotification{EmailAddress: wire.EmailAddress}
	if id := strings.Trim(string(wire.HistoryID), `"`); id != "" && id != "null" {
		v, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return PushNotification{}, errors.New("invalid historyId " + id)
		}
		n.HistoryID = v
	}
	return n, nil
}
