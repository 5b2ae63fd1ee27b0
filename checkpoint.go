package reagent

import (
	"context"
	"time"
)

// Checkpoint is a persisted, immutable snapshot of conversation state at
// the end of one completed step. For a given thread the checkpoints form
// a contiguous sequence of step indexes starting at 0; a checkpoint is
// never mutated after creation and only removed by explicit deletion.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Step      int       `json:"step"`
	State     *State    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCheckpoint snapshots state for a thread at a step. The state is
// deep-copied, so the loop can keep appending to its own copy.
func NewCheckpoint(threadID string, step int, state *State) *Checkpoint {
	return &Checkpoint{
		ThreadID:  threadID,
		Step:      step,
		State:     state.Clone(),
		CreatedAt: time.Now(),
	}
}

// Store persists checkpoints keyed by thread id. Implementations can use
// any backend (in-memory map, bbolt, a relational store) as long as they
// keep the same ordering and visibility guarantees:
//
//   - Put must reject any step that is not exactly latest+1 (or 0 for a
//     fresh thread) with ErrCheckpointConflict, keeping the per-thread
//     sequence strictly increasing and gapless.
//   - A Put must be visible to a GetLatest issued after Put returned.
//   - GetLatest and Get return (nil, nil) when absent.
//   - Acquire grants the per-thread single-writer lease; a second
//     Acquire before release fails fast with ErrThreadBusy.
type Store interface {
	Put(ctx context.Context, cp *Checkpoint) error
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	Get(ctx context.Context, threadID string, step int) (*Checkpoint, error)
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Delete removes a single checkpoint; DeleteThread removes the whole
	// thread. Both exist for explicit retention policies only, nothing in
	// the loop deletes implicitly.
	Delete(ctx context.Context, threadID string, step int) error
	DeleteThread(ctx context.Context, threadID string) error

	// Acquire takes the writer lease for a thread and returns its release
	// function. The loop holds the lease for the whole run.
	Acquire(ctx context.Context, threadID string) (func(), error)
}
