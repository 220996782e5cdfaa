package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a generation task.
type TaskStatus string

// Possible task status values. A task starts in pending, is claimed into
// processing by exactly one executor run, and ends in completed or failed.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Bounds for task creation input.
const (
	PromptMinLength  = 3
	PromptMaxLength  = 1000
	StyleMaxLength   = 64
	DimensionMin     = 256
	DimensionMax     = 1024
	DimensionDefault = 512
)

// Common validation errors for Task.
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrPromptTooShort    = fmt.Errorf("prompt must be at least %d characters", PromptMinLength)
	ErrPromptTooLong     = fmt.Errorf("prompt must be at most %d characters", PromptMaxLength)
	ErrStyleTooLong      = fmt.Errorf("style must be at most %d characters", StyleMaxLength)
	ErrInvalidDimensions = fmt.Errorf(
		"width and height must be between %d and %d",
		DimensionMin,
		DimensionMax,
	)
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTaskTerminal      = errors.New("task is in a terminal status")
	ErrResultMismatch    = errors.New(
		"result reference and failure reason must match the task status",
	)
)

// Task represents one request to produce an image from a prompt, tracked
// through its lifecycle. The result reference and failure reason are mutually
// exclusive and only ever set in the matching terminal status.
type Task struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       uuid.NullUUID `json:"owner_id"`
	Prompt        string        `json:"prompt"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Style         string        `json:"style,omitempty"`
	Status        TaskStatus    `json:"status"`
	ResultRef     string        `json:"result_ref,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewTask creates a new Task in status pending with a fresh ID and UTC
// timestamps. The prompt is trimmed; zero width or height fall back to
// DimensionDefault. Returns an error if validation fails.
func NewTask(ownerID uuid.NullUUID, prompt string, width, height int, style string) (*Task, error) {
	if width == 0 {
		width = DimensionDefault
	}
	if height == 0 {
		height = DimensionDefault
	}

	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Prompt:    strings.TrimSpace(prompt),
		Width:     width,
		Height:    height,
		Style:     strings.TrimSpace(style),
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data, including the invariant that
// exactly one of result reference and failure reason is set, and only in the
// matching terminal status. Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	promptLen := utf8.RuneCountInString(t.Prompt)
	if promptLen < PromptMinLength {
		return ErrPromptTooShort
	}
	if promptLen > PromptMaxLength {
		return ErrPromptTooLong
	}

	if utf8.RuneCountInString(t.Style) > StyleMaxLength {
		return ErrStyleTooLong
	}

	if t.Width < DimensionMin || t.Width > DimensionMax ||
		t.Height < DimensionMin || t.Height > DimensionMax {
		return ErrInvalidDimensions
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	switch t.Status {
	case TaskStatusCompleted:
		if t.ResultRef == "" || t.FailureReason != "" {
			return ErrResultMismatch
		}
	case TaskStatusFailed:
		if t.FailureReason == "" || t.ResultRef != "" {
			return ErrResultMismatch
		}
	default:
		if t.ResultRef != "" || t.FailureReason != "" {
			return ErrResultMismatch
		}
	}

	return nil
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// TransitionTo moves the task to the given status, enforcing the state
// machine: pending -> processing -> {completed, failed}. It updates the
// UpdatedAt timestamp on success. Terminal writes must go through Complete or
// Fail so the result invariant holds.
func (t *Task) TransitionTo(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}
	if !canTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete atomically records a successful outcome: status completed plus the
// artifact reference, in one mutation. Only valid from processing.
func (t *Task) Complete(resultRef string) error {
	if resultRef == "" {
		return ErrResultMismatch
	}
	if err := t.TransitionTo(TaskStatusCompleted); err != nil {
		return err
	}
	t.ResultRef = resultRef
	t.FailureReason = ""
	return nil
}

// Fail atomically records a failed outcome: status failed plus a non-empty
// human-readable reason, in one mutation. Only valid from processing.
func (t *Task) Fail(reason string) error {
	if reason == "" {
		return ErrResultMismatch
	}
	if err := t.TransitionTo(TaskStatusFailed); err != nil {
		return err
	}
	t.FailureReason = reason
	t.ResultRef = ""
	return nil
}

// canTransition encodes the task state machine. No transition leaves a
// terminal status.
func canTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	default:
		return false
	}
}

// ParseTaskStatus converts a status string into a TaskStatus.
// Returns ErrInvalidTaskStatus for unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !isValidTaskStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, s)
	}
	return status, nil
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
