// Package bolt provides a durable checkpoint store backed by bbolt.
//
// Layout: one sub-bucket per thread under a single root bucket, with
// checkpoints keyed by their 8-byte big-endian step index so that
// cursor order is step order.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
	bbolt "go.etcd.io/bbolt"
)

const bucketCheckpoints = "checkpoints"

// Store is a reagent.Store persisting checkpoints in a bbolt file. The
// writer lease is held in process; bbolt's file lock already keeps other
// processes out of the database entirely.
type Store struct {
	db *bbolt.DB

	mu     sync.Mutex
	leases map[string]bool
}

var _ reagent.Store = (*Store)(nil)

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open bolt database", goerr.V("path", path))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCheckpoints))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create checkpoint bucket")
	}

	return &Store{
		db:     db,
		leases: make(map[string]bool),
	}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func stepKey(step int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(step))
	return key
}

func threadBucket(tx *bbolt.Tx, threadID string) *bbolt.Bucket {
	return tx.Bucket([]byte(bucketCheckpoints)).Bucket([]byte(threadID))
}

// nextStep returns the step index a Put must carry, i.e. one past the
// last stored checkpoint.
func nextStep(b *bbolt.Bucket) int {
	if b == nil {
		return 0
	}
	last, _ := b.Cursor().Last()
	if last == nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(last)) + 1
}

// Put appends a checkpoint. The write transaction re-checks the step
// index, so contiguity holds even without the writer lease.
func (s *Store) Put(ctx context.Context, cp *reagent.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return goerr.Wrap(err, "failed to encode checkpoint",
			goerr.V("thread_id", cp.ThreadID), goerr.V("step", cp.Step))
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(bucketCheckpoints))
		b, err := root.CreateBucketIfNotExists([]byte(cp.ThreadID))
		if err != nil {
			return goerr.Wrap(err, "failed to create thread bucket", goerr.V("thread_id", cp.ThreadID))
		}

		if want := nextStep(b); cp.Step != want {
			return goerr.Wrap(reagent.ErrCheckpointConflict, "checkpoint step out of sequence",
				goerr.V("thread_id", cp.ThreadID), goerr.V("step", cp.Step), goerr.V("want", want))
		}

		return b.Put(stepKey(cp.Step), raw)
	})
}

func decode(raw []byte) (*reagent.Checkpoint, error) {
	var cp reagent.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, goerr.Wrap(err, "failed to decode checkpoint")
	}
	return &cp, nil
}

// GetLatest returns the newest checkpoint for a thread, or (nil, nil)
// when the thread has none.
func (s *Store) GetLatest(ctx context.Context, threadID string) (*reagent.Checkpoint, error) {
	var cp *reagent.Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := threadBucket(tx, threadID)
		if b == nil {
			return nil
		}
		_, raw := b.Cursor().Last()
		if raw == nil {
			return nil
		}
		var err error
		cp, err = decode(raw)
		return err
	})
	return cp, err
}

// Get returns the checkpoint at a step, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, threadID string, step int) (*reagent.Checkpoint, error) {
	var cp *reagent.Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := threadBucket(tx, threadID)
		if b == nil {
			return nil
		}
		raw := b.Get(stepKey(step))
		if raw == nil {
			return nil
		}
		var err error
		cp, err = decode(raw)
		return err
	})
	return cp, err
}

// List returns all checkpoints of a thread in step order.
func (s *Store) List(ctx context.Context, threadID string) ([]*reagent.Checkpoint, error) {
	var out []*reagent.Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := threadBucket(tx, threadID)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, raw := c.First(); k != nil; k, raw = c.Next() {
			cp, err := decode(raw)
			if err != nil {
				return err
			}
			out = append(out, cp)
		}
		return nil
	})
	return out, err
}

// Delete removes one checkpoint. Absent entries are a no-op.
func (s *Store) Delete(ctx context.Context, threadID string, step int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := threadBucket(tx, threadID)
		if b == nil {
			return nil
		}
		return b.Delete(stepKey(step))
	})
}

// DeleteThread removes a thread and all its checkpoints.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(bucketCheckpoints))
		if root.Bucket([]byte(threadID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(threadID))
	})
}

// Acquire takes the in-process writer lease for a thread.
func (s *Store) Acquire(ctx context.Context, threadID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leases[threadID] {
		return nil, goerr.Wrap(reagent.ErrThreadBusy, "thread already has a writer",
			goerr.V("thread_id", threadID))
	}
	s.leases[threadID] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.leases, threadID)
		})
	}
	return release, nil
}
