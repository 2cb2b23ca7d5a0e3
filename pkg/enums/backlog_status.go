package enums

import "fmt"

// BacklogStatus maps to the anchor_backlog_status_enum enum in Postgres.
type BacklogStatus string

const (
	BacklogStatusPending BacklogStatus = "pending"
	BacklogStatusSuccess BacklogStatus = "success"
)

var validBacklogStatuses = []BacklogStatus{
	BacklogStatusPending,
	BacklogStatusSuccess,
}

// IsValid reports whether the value matches the canonical backlog status enum.
func (s BacklogStatus) IsValid() bool {
	for _, candidate := range validBacklogStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBacklogStatus converts raw input into BacklogStatus.
func ParseBacklogStatus(value string) (BacklogStatus, error) {
	for _, candidate := range validBacklogStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid backlog status %q", value)
}
