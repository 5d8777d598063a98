package syncer

import (
	"fmt"
	"time"

	"github.com/mlindgren/feedsync/internal/fault"
)

// Stage is one state of the synchronizer's fixed sequence. Stages run in
// declaration order: local star and read intent is pushed before any
// pull, so a pull keyed on server modification time can never reintroduce
// a state the user just changed. Pulls run in dependency order — feeds
// reference folders, articles reference feeds — so each stage resolves
// its references against already-updated local state.
type Stage int

const (
	// StageIdle means no run is in progress.
	StageIdle Stage = iota
	// StagePushStars pushes queued star/unstar mutations.
	StagePushStars
	// StagePushReads pushes queued read/unread mutations.
	StagePushReads
	// StagePullFolders pulls the authoritative folder list.
	StagePullFolders
	// StagePullFeeds pulls the authoritative feed list.
	StagePullFeeds
	// StagePullUnread pulls all currently unread articles.
	StagePullUnread
	// StagePullStarred pulls all currently starred articles.
	StagePullStarred
	// StagePullUpdated pulls articles modified since the newest cached
	// timestamp (or everything, capped, on a first sync).
	StagePullUpdated
)

// String returns a human-readable representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StagePushStars:
		return "push-stars"
	case StagePushReads:
		return "push-reads"
	case StagePullFolders:
		return "pull-folders"
	case StagePullFeeds:
		return "pull-feeds"
	case StagePullUnread:
		return "pull-unread"
	case StagePullStarred:
		return "pull-starred"
	case StagePullUpdated:
		return "pull-updated"
	default:
		return "unknown"
	}
}

// EventType distinguishes progress event kinds.
type EventType int

const (
	// EventStageStarted fires when a stage begins.
	EventStageStarted EventType = iota
	// EventStageFinished fires when a stage commits.
	EventStageFinished
	// EventStageFailed fires when a stage aborts the run.
	EventStageFailed
	// EventRunFinished fires once after the last stage of a successful run.
	EventRunFinished
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventStageStarted:
		return "stage_started"
	case EventStageFinished:
		return "stage_finished"
	case EventStageFailed:
		return "stage_failed"
	case EventRunFinished:
		return "run_finished"
	default:
		return "unknown"
	}
}

// Event is one progress notification. Events are emitted at stage
// transitions only and never affect engine control flow.
type Event struct {
	Type  EventType
	Stage Stage
	Err   *fault.Error // set for EventStageFailed
	At    time.Time
}

// StageError reports which stage aborted a run together with the
// classified failure. The caller gets the error kind, the stable message
// key and the retryability bit — enough to show a precise message and
// decide whether to offer a retry.
type StageError struct {
	Stage Stage
	Err   *fault.Error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("sync stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap exposes the classified fault for errors.As / errors.Is.
func (e *StageError) Unwrap() error {
	return e.Err
}
