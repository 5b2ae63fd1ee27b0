package reagent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reagent"
)

func stateWith(texts ...string) *reagent.State {
	state := reagent.NewState()
	for _, text := range texts {
		state.Append(reagent.NewUserMessage(text))
	}
	return state
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("absent thread reads as nil", func(t *testing.T) {
		store := reagent.NewMemoryStore()

		cp, err := store.GetLatest(ctx, "nope")
		gt.NoError(t, err)
		gt.Nil(t, cp)

		cp, err = store.Get(ctx, "nope", 0)
		gt.NoError(t, err)
		gt.Nil(t, cp)

		list, err := store.List(ctx, "nope")
		gt.NoError(t, err)
		gt.Equal(t, len(list), 0)
	})

	t.Run("put then get latest", func(t *testing.T) {
		store := reagent.NewMemoryStore()

		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("hello"))))

		cp, err := store.GetLatest(ctx, "t1")
		gt.NoError(t, err)
		gt.NotNil(t, cp)
		gt.Equal(t, cp.Step, 0)
		gt.Equal(t, cp.State.Messages[0].Content, "hello")
	})

	t.Run("steps must be gapless from zero", func(t *testing.T) {
		store := reagent.NewMemoryStore()

		err := store.Put(ctx, reagent.NewCheckpoint("t1", 1, stateWith("a")))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrCheckpointConflict))

		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("a"))))
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 1, stateWith("a", "b"))))

		err = store.Put(ctx, reagent.NewCheckpoint("t1", 3, stateWith("a", "b", "c")))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrCheckpointConflict))

		err = store.Put(ctx, reagent.NewCheckpoint("t1", 1, stateWith("again")))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrCheckpointConflict))
	})

	t.Run("threads are independent", func(t *testing.T) {
		store := reagent.NewMemoryStore()

		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("one"))))
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t2", 0, stateWith("two"))))

		cp, err := store.GetLatest(ctx, "t2")
		gt.NoError(t, err)
		gt.Equal(t, cp.State.Messages[0].Content, "two")
	})

	t.Run("list returns step order", func(t *testing.T) {
		store := reagent.NewMemoryStore()
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("a"))))
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 1, stateWith("a", "b"))))
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 2, stateWith("a", "b", "c"))))

		list, err := store.List(ctx, "t1")
		gt.NoError(t, err)
		gt.Equal(t, len(list), 3)
		for i, cp := range list {
			gt.Equal(t, cp.Step, i)
		}
	})

	t.Run("stored state is isolated from caller", func(t *testing.T) {
		store := reagent.NewMemoryStore()
		state := stateWith("original")
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, state)))

		state.Append(reagent.NewUserMessage("mutated"))

		cp, err := store.GetLatest(ctx, "t1")
		gt.NoError(t, err)
		gt.Equal(t, len(cp.State.Messages), 1)

		cp.State.Append(reagent.NewUserMessage("also mutated"))
		again, err := store.GetLatest(ctx, "t1")
		gt.NoError(t, err)
		gt.Equal(t, len(again.State.Messages), 1)
	})

	t.Run("delete single checkpoint", func(t *testing.T) {
		store := reagent.NewMemoryStore()
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("a"))))
		gt.NoError(t, store.Delete(ctx, "t1", 0))

		cp, err := store.Get(ctx, "t1", 0)
		gt.NoError(t, err)
		gt.Nil(t, cp)
	})

	t.Run("delete thread", func(t *testing.T) {
		store := reagent.NewMemoryStore()
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("a"))))
		gt.NoError(t, store.DeleteThread(ctx, "t1"))

		cp, err := store.GetLatest(ctx, "t1")
		gt.NoError(t, err)
		gt.Nil(t, cp)

		// After deletion the step sequence restarts from zero.
		gt.NoError(t, store.Put(ctx, reagent.NewCheckpoint("t1", 0, stateWith("fresh"))))
	})

	t.Run("writer lease", func(t *testing.T) {
		store := reagent.NewMemoryStore()

		release, err := store.Acquire(ctx, "t1")
		gt.NoError(t, err)

		_, err = store.Acquire(ctx, "t1")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrThreadBusy))

		// Other threads are unaffected.
		releaseOther, err := store.Acquire(ctx, "t2")
		gt.NoError(t, err)
		releaseOther()

		release()
		release() // releasing twice is a no-op

		release2, err := store.Acquire(ctx, "t1")
		gt.NoError(t, err)
		release2()
	})
}

func TestNewCheckpoint(t *testing.T) {
	state := stateWith("hello")
	cp := reagent.NewCheckpoint("t1", 0, state)

	gt.Equal(t, cp.ThreadID, "t1")
	gt.Equal(t, cp.Step, 0)
	gt.False(t, cp.CreatedAt.IsZero())

	// The checkpoint holds a deep copy.
	state.Append(reagent.NewUserMessage("more"))
	gt.Equal(t, len(cp.State.Messages), 1)
}
