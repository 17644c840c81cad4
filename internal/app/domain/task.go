package domain

import (
	"fmt"
	"time"
)

// TaskKind names a pipeline stage. The set is closed: the worker refuses
// anything else instead of guessing.
type TaskKind string

const (
	// TaskDispatchCommand asks for one RawCommand to be parsed and routed.
	TaskDispatchCommand TaskKind = "dispatchCommand"
	// TaskValidateDemand runs the demand validation state machine.
	TaskValidateDemand TaskKind = "validateDemand"
	// TaskValidateOpenProposal runs the proposal validation state machine.
	TaskValidateOpenProposal TaskKind = "validateOpenProposal"
	// TaskProcessPublishedDemand hands a published demand to downstream
	// matching. Produced here, consumed elsewhere.
	TaskProcessPublishedDemand TaskKind = "processPublishedDemand"
	// TaskProcessPublishedProposal hands a published proposal to downstream
	// matching. Produced here, consumed elsewhere.
	TaskProcessPublishedProposal TaskKind = "processPublishedProposal"
)

// ParseTaskKind validates a task kind read back from the queue.
func ParseTaskKind(value string) (TaskKind, error) {
	switch TaskKind(value) {
	case TaskDispatchCommand, TaskValidateDemand, TaskValidateOpenProposal,
		TaskProcessPublishedDemand, TaskProcessPublishedProposal:
		return TaskKind(value), nil
	}
	return "", fmt.Errorf("unknown task kind %q", value)
}

// Task is the typed envelope carried by the work queue: a stage name plus
// the key of the entity the stage operates on.
type Task struct {
	ID        string
	Kind      TaskKind
	EntityKey int64
	Attempts  int
	CreatedAt time.Time
}
