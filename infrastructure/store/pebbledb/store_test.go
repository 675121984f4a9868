package pebbledb

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickboard/board/entities"
	"os"
	"sync"
	"testing"
	"time"
)

var testDefaults = Defaults{
	Message:   "generic_message",
	Active:    true,
	TickTypes: []string{"Oil change", "Restock", "Cleaning"},
}

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = now
}

func newTestStore(t *testing.T, dir string, now func() time.Time) *Store {
	store, err := NewStore(dir, now)
	require.NoError(t, err)
	return store
}

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "board_store_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestStore_GetSequence_givenNotInitialized_thenNotFound(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()

	_, err := store.GetSequence()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, entities.ErrStoreEntityNotFound)
}

func TestStore_Initialize(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()

	written, err := store.Initialize(testDefaults)
	require.NoError(t, err)
	assert.True(t, written)

	sequence, err := store.GetSequence()
	require.NoError(t, err)
	assert.Zero(t, sequence)

	message, err := store.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, "generic_message", message)

	active, err := store.GetActive()
	require.NoError(t, err)
	assert.True(t, active)

	tickTypes, err := store.GetTickTypes()
	require.NoError(t, err)
	assert.Equal(t, []entities.TickType{
		{ID: 1, Tick: "Oil change"},
		{ID: 2, Tick: "Restock"},
		{ID: 3, Tick: "Cleaning"},
	}, tickTypes)

	label, err := store.GetTickType(2)
	require.NoError(t, err)
	assert.Equal(t, "Restock", label)

	_, err = store.GetTickType(4)
	assert.ErrorIs(t, err, ErrNotFound)

	ticks, err := store.GetTicksSince(time.Time{})
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestStore_Initialize_givenInitialized_thenKeepsState(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()

	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)
	_, err = store.CommitMutation(0, entities.Message{Message: "changed"})
	require.NoError(t, err)

	written, err := store.Initialize(Defaults{Message: "other", TickTypes: []string{"x"}})
	require.NoError(t, err)
	assert.False(t, written)

	message, err := store.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, "changed", message)

	sequence, err := store.GetSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sequence)
}

func TestStore_Initialize_givenTooManyTickTypes_thenError(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()

	_, err := store.Initialize(Defaults{TickTypes: make([]string, 256)})
	assert.Error(t, err)

	_, err = store.GetSequence()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CommitMutation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 2, 14, 30, 15, 123_456_789, time.UTC)}
	store := newTestStore(t, tempDir(t), clock.Now)
	defer store.Close()
	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)

	commit, err := store.CommitMutation(0, entities.Message{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, &entities.Commit{Sequence: 1}, commit)

	commit, err = store.CommitMutation(1, entities.Active{Active: false})
	require.NoError(t, err)
	assert.Equal(t, &entities.Commit{Sequence: 2}, commit)

	commit, err = store.CommitMutation(2, entities.TriggerTick{Type: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), commit.Sequence)
	require.NotNil(t, commit.Tick)
	assert.Equal(t, uint64(1), commit.Tick.ID)
	assert.Equal(t, uint8(3), commit.Tick.Type)
	assert.Equal(t, time.Date(2024, 5, 2, 14, 30, 15, 123_000_000, time.UTC), commit.Tick.CreatedAt)

	message, err := store.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, "hi", message)

	active, err := store.GetActive()
	require.NoError(t, err)
	assert.False(t, active)

	sequence, err := store.GetSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sequence)

	ticks, err := store.GetTicksSince(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []entities.Tick{*commit.Tick}, ticks)
}

func TestStore_CommitMutation_givenStaleSequence_thenConflictWithoutChange(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()
	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)

	_, err = store.CommitMutation(0, entities.Message{Message: "first"})
	require.NoError(t, err)

	for _, expected := range []uint64{0, 2, 100} {
		_, err = store.CommitMutation(expected, entities.Message{Message: "replayed"})
		assert.ErrorIs(t, err, entities.ErrSequenceConflict)
	}
	_, err = store.CommitMutation(0, entities.TriggerTick{Type: 1})
	assert.ErrorIs(t, err, entities.ErrSequenceConflict)

	message, err := store.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, "first", message)

	sequence, err := store.GetSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sequence)

	ticks, err := store.GetTicksSince(time.Time{})
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestStore_CommitMutation_concurrentSameSequence(t *testing.T) {
	store := newTestStore(t, tempDir(t), nil)
	defer store.Close()
	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)

	const submissions = 8
	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(tickType uint8) {
			defer wg.Done()
			_, err := store.CommitMutation(0, entities.TriggerTick{Type: tickType})
			errs <- err
		}(uint8(i + 1))
	}
	wg.Wait()
	close(errs)

	var accepted int
	for err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, entities.ErrSequenceConflict)
		}
	}
	assert.Equal(t, 1, accepted)

	ticks, err := store.GetTicksSince(time.Time{})
	require.NoError(t, err)
	assert.Len(t, ticks, 1)
}

func TestStore_GetTicksSince_filtersAndOrders(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{}
	store := newTestStore(t, tempDir(t), clock.Now)
	defer store.Close()
	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Hour))
		_, err := store.CommitMutation(uint64(i), entities.TriggerTick{Type: uint8(i%3 + 1)})
		require.NoError(t, err)
	}

	ticks, err := store.GetTicksSince(base.Add(10 * time.Hour))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, uint64(11), ticks[0].ID)
	assert.Equal(t, uint64(12), ticks[1].ID)
	assert.Equal(t, base.Add(10*time.Hour), ticks[0].CreatedAt)

	all, err := store.GetTicksSince(time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 12)
	for i, tick := range all {
		assert.Equal(t, uint64(i+1), tick.ID)
	}
}

func TestStore_reopen_keepsState(t *testing.T) {
	dir := tempDir(t)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	store := newTestStore(t, dir, clock.Now)
	_, err := store.Initialize(testDefaults)
	require.NoError(t, err)
	_, err = store.CommitMutation(0, entities.TriggerTick{Type: 2})
	require.NoError(t, err)
	_, err = store.CommitMutation(1, entities.Message{Message: "persisted"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store = newTestStore(t, dir, clock.Now)
	defer store.Close()

	written, err := store.Initialize(testDefaults)
	require.NoError(t, err)
	assert.False(t, written)

	sequence, err := store.GetSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sequence)

	message, err := store.GetMessage()
	require.NoError(t, err)
	assert.Equal(t, "persisted", message)

	commit, err := store.CommitMutation(2, entities.TriggerTick{Type: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), commit.Tick.ID)
}
