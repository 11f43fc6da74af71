package checklist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the condition recorded for a checklist item.
type Status string

const (
	StatusOK        Status = "OK"
	StatusAttention Status = "ATTENTION"
	StatusRepair    Status = "REPAIR"
)

// Statuses lists every legal status in cycle order.
var Statuses = []Status{StatusOK, StatusAttention, StatusRepair}

// ParseStatus accepts any casing and surrounding whitespace.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOK:
		return StatusOK, nil
	case StatusAttention:
		return StatusAttention, nil
	case StatusRepair:
		return StatusRepair, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

func (s Status) Valid() bool {
	return s == StatusOK || s == StatusAttention || s == StatusRepair
}

// Next returns the following status in the OK -> ATTENTION -> REPAIR -> OK cycle.
func (s Status) Next() Status {
	switch s {
	case StatusOK:
		return StatusAttention
	case StatusAttention:
		return StatusRepair
	default:
		return StatusOK
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
