package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Event records one transition of a site run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the state the run just entered.
	Stage tracker.Stage
	// Site is the configured site name.
	Site string
	// URL is the scan target.
	URL string
	// Status is set only on the last event of a run.
	Status tracker.RunStatus
	// FailedStage names the stage that failed when Status is failed.
	FailedStage tracker.Stage
	// Records counts rows published (or canonicalized, before publish).
	Records int64
	// Total counts rows parsed from the report.
	Total int64
	// Attempts is the number of scanner invocations so far.
	Attempts int
	// Score is the report score, when known.
	Score float64
	// SheetURL points at the spreadsheet the run published to.
	SheetURL string
	// Dur is the time spent in the previous stage, or the whole run on the
	// final event.
	Dur time.Duration
	// Note carries low-volume context such as the failure text.
	Note string
}

// Final reports whether e closes its run.
func (e Event) Final() bool {
	return e.Status != ""
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if !knownStage(e.Stage) {
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	switch e.Status {
	case "":
	case tracker.StatusSuccess, tracker.StatusLockContended:
		if e.Site == "" {
			return errors.New("final event requires site")
		}
	case tracker.StatusFailed:
		if e.Site == "" {
			return errors.New("final event requires site")
		}
		if !e.FailedStage.Failed() {
			return fmt.Errorf("failed run needs a failure stage, got %q", e.FailedStage)
		}
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

func knownStage(s tracker.Stage) bool {
	switch s {
	case tracker.StageIdle,
		tracker.StageLocked,
		tracker.StageProvisioning,
		tracker.StageScanning,
		tracker.StageScanSucceeded,
		tracker.StageScanFailed,
		tracker.StageCanonicalizing,
		tracker.StageCanonicalized,
		tracker.StageCanonicalizeFailed,
		tracker.StagePublishing,
		tracker.StagePublished,
		tracker.StagePublishFailed,
		tracker.StageUnlocked:
		return true
	default:
		return false
	}
}
