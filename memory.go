package reagent

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// MemoryStore is the in-memory checkpoint store. It is the default
// backend of an Agent and is safe for concurrent use across threads; the
// per-thread writer lease serializes runs on the same thread.
type MemoryStore struct {
	mu     sync.Mutex
	chains map[string][]*Checkpoint
	leases map[string]bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: map[string][]*Checkpoint{},
		leases: map[string]bool{},
	}
}

func (x *MemoryStore) Put(ctx context.Context, cp *Checkpoint) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	chain := x.chains[cp.ThreadID]
	if cp.Step != len(chain) {
		return goerr.Wrap(ErrCheckpointConflict, "step must extend the chain",
			goerr.V("thread_id", cp.ThreadID),
			goerr.V("step", cp.Step),
			goerr.V("want", len(chain)),
		)
	}

	stored := *cp
	stored.State = cp.State.Clone()
	x.chains[cp.ThreadID] = append(chain, &stored)
	return nil
}

func (x *MemoryStore) GetLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	chain := x.chains[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return cloneCheckpoint(chain[len(chain)-1]), nil
}

func (x *MemoryStore) Get(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, cp := range x.chains[threadID] {
		if cp.Step == step {
			return cloneCheckpoint(cp), nil
		}
	}
	return nil, nil
}

func (x *MemoryStore) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	chain := x.chains[threadID]
	out := make([]*Checkpoint, 0, len(chain))
	for _, cp := range chain {
		out = append(out, cloneCheckpoint(cp))
	}
	return out, nil
}

func (x *MemoryStore) Delete(ctx context.Context, threadID string, step int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	chain := x.chains[threadID]
	for i, cp := range chain {
		if cp.Step == step {
			x.chains[threadID] = append(chain[:i:i], chain[i+1:]...)
			return nil
		}
	}
	return nil
}

func (x *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	delete(x.chains, threadID)
	return nil
}

func (x *MemoryStore) Acquire(ctx context.Context, threadID string) (func(), error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.leases[threadID] {
		return nil, goerr.Wrap(ErrThreadBusy, "writer lease is held", goerr.V("thread_id", threadID))
	}
	x.leases[threadID] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			x.mu.Lock()
			defer x.mu.Unlock()
			delete(x.leases, threadID)
		})
	}
	return release, nil
}

func cloneCheckpoint(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.State = cp.State.Clone()
	return &out
}
