package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type InstanceStatus string

const (
	StatusIncomplete       InstanceStatus = "incomplete"
	StatusComplete         InstanceStatus = "complete"
	StatusSubmitted        InstanceStatus = "submitted"
	StatusSubmissionFailed InstanceStatus = "submissionFailed"
)

func ParseInstanceStatus(s string) (InstanceStatus, error) {
	switch st := InstanceStatus(s); st {
	case StatusIncomplete, StatusComplete, StatusSubmitted, StatusSubmissionFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown instance status %q", s)
	}
}

// Instance is a filled-in form.
type Instance struct {
	ID          uuid.UUID
	FormID      string
	FormVersion string
	DisplayName string
	FilePath    string
	Status      InstanceStatus
	UpdatedAt   time.Time
}

type InstanceRepository interface {
	Insert(ctx context.Context, inst *Instance) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status InstanceStatus) error
	CountByStatus(ctx context.Context) (map[InstanceStatus]int, error)
	DeleteAll(ctx context.Context) error
}

// Counters back the three main-menu buttons.
type Counters struct {
	Finalized int `json:"finalized"`
	Saved     int `json:"saved"`
	Sent      int `json:"sent"`
}

// CountersFrom derives the menu counters: finalized is complete plus
// submission-failed, saved is anything not yet submitted, sent is submitted.
func CountersFrom(byStatus map[InstanceStatus]int) Counters {
	var c Counters
	for status, n := range byStatus {
		switch status {
		case StatusComplete, StatusSubmissionFailed:
			c.Finalized += n
		}
		if status == StatusSubmitted {
			c.Sent += n
		} else {
			c.Saved += n
		}
	}
	return c
}
