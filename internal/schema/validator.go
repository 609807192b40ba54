// Package schema validates outbound events before they are published.
package schema

import (
	"errors"
	"fmt"

	"accountability-call-service/internal/models"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrWrongEventType   = errors.New("unexpected event type")
	ErrUnsupportedEvent = errors.New("unsupported event")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks required fields of a models payload.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.TranscriptPartial:
		return validateTranscript(models.EventTypePartial, ev.EventType, ev.Room, ev.RevisionID, ev.SegmentID, ev.Timestamp)
	case *models.TranscriptPartial:
		return v.Validate(*ev)
	case models.TranscriptFinal:
		return validateTranscript(models.EventTypeFinal, ev.EventType, ev.Room, ev.RevisionID, ev.SegmentID, ev.Timestamp)
	case *models.TranscriptFinal:
		return v.Validate(*ev)
	case models.AgentStateChanged:
		if ev.EventType != models.EventTypeAgentState {
			return fmt.Errorf("%w: %q", ErrWrongEventType, ev.EventType)
		}
		if err := require("room", ev.Room); err != nil {
			return err
		}
		if err := require("revisionId", ev.RevisionID); err != nil {
			return err
		}
		return require("state", ev.State)
	case *models.AgentStateChanged:
		return v.Validate(*ev)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}
}

func validateTranscript(want, got, room, revisionID, segmentID string, timestamp int64) error {
	if got != want {
		return fmt.Errorf("%w: %q", ErrWrongEventType, got)
	}
	if err := require("room", room); err != nil {
		return err
	}
	if err := require("revisionId", revisionID); err != nil {
		return err
	}
	if err := require("segmentId", segmentID); err != nil {
		return err
	}
	if timestamp <= 0 {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	return nil
}

func require(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}
