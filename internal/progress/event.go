package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSeed       Stage = "SEED"
	StageDiscovered Stage = "DISCOVERED"
	StageCrawled    Stage = "CRAWLED"
	StageFailed     Stage = "FAILED"
	StageRunStart   Stage = "RUN_START"
	StageRunStop    Stage = "RUN_STOP"
	StagePaused     Stage = "PAUSED"
	StageResumed    Stage = "RESUMED"
	StageReset      Stage = "RESET"
)

// Stages lists every supported stage in a stable order.
var Stages = []Stage{
	StageSeed, StageDiscovered, StageCrawled, StageFailed,
	StageRunStart, StageRunStop, StagePaused, StageResumed, StageReset,
}

// Event captures a single step of crawl progress.
type Event struct {
	// ID uniquely identifies the event for downstream de-duplication.
	ID uuid.UUID `json:"id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// URL is the work item the event refers to; empty for run-level stages.
	URL            string `json:"url,omitempty"`
	ParentURL      string `json:"parent_url,omitempty"`
	Depth          int    `json:"depth"`
	MaxDepth       int    `json:"max_depth"`
	Classification string `json:"classification,omitempty"`
	StatusCode     int    `json:"status_code,omitempty"`
	Bytes          int64  `json:"bytes,omitempty"`
	// Dur is the fetch latency for CRAWLED and FAILED events.
	Dur time.Duration `json:"dur,omitempty"`
	// Note carries low-volume context such as error text.
	Note string `json:"note,omitempty"`
}

// NewEvent stamps a fresh ID and timestamp onto an event of the given stage.
func NewEvent(stage Stage, now time.Time) Event {
	return Event{ID: uuid.New(), TS: now.UTC(), Stage: stage}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunStop, StagePaused, StageResumed, StageReset:
	case StageSeed, StageDiscovered, StageCrawled, StageFailed:
		if e.URL == "" {
			return fmt.Errorf("%s event requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Depth < 0 {
		return errors.New("depth must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
