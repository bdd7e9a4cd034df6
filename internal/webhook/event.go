package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrBadEvent marks an event the provider should not retry: no charge id
// could be extracted, so redelivery cannot help.
var ErrBadEvent = errors.New("unparseable webhook event")

// flexID accepts a charge id sent either as a JSON string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("unsupported id value %s", b)
}

// eventEnvelope is the union of the provider's notification shapes:
//
//	{"type":"payment","data":{"id":...}}
//	{"action":"payment.updated","data":{"id":...}}
//	{"id":...,"topic":"payment"}
//	bare id (string or number)
type eventEnvelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Topic  string `json:"topic"`
	ID     flexID `json:"id"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// ExtractChargeID normalizes every supported envelope shape into a single
// canonical charge id before any business logic runs.
func ExtractChargeID(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", ErrBadEvent
	}

	if trimmed[0] == '{' {
		var env eventEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadEvent, err)
		}
		switch {
		case env.Type == "payment" && env.Data.ID != "":
			return string(env.Data.ID), nil
		case strings.HasPrefix(env.Action, "payment.") && env.Data.ID != "":
			return string(env.Data.ID), nil
		case env.Topic == "payment" && env.ID != "":
			return string(env.ID), nil
		}
		return "", ErrBadEvent
	}

	var id flexID
	if err := json.Unmarshal(trimmed, &id); err != nil || id == "" {
		return "", ErrBadEvent
	}
	return string(id), nil
}
