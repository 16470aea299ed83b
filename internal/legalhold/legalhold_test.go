package legalhold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/testutil"
)

func newTestRegistry() (*Registry, *testutil.MemStore) {
	store := testutil.NewMemStore()
	return NewRegistry(store, audit.Discard{}), store
}

func TestCreateHold(t *testing.T) {
	t.Parallel()

	r, store := newTestRegistry()
	ctx := context.Background()

	hold, err := r.CreateHold(ctx, "doc-1", "litigation", "counsel@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, datastore.HoldActive, hold.Status)
	assert.Equal(t, "doc-1", hold.DocumentID)
	assert.NotEmpty(t, hold.ID)
	assert.Len(t, store.Holds, 1)
}

func TestCreateHoldRequiresDocumentID(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	_, err := r.CreateHold(context.Background(), "", "reason", "actor", nil)
	assert.True(t, errors.IsValidation(err))
}

func TestSecondActiveHoldFails(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	ctx := context.Background()

	_, err := r.CreateHold(ctx, "doc-1", "litigation", "a", nil)
	require.NoError(t, err)

	_, err = r.CreateHold(ctx, "doc-1", "second", "b", nil)
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestReleaseHold(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	ctx := context.Background()

	hold, err := r.CreateHold(ctx, "doc-1", "litigation", "a", nil)
	require.NoError(t, err)

	released, err := r.ReleaseHold(ctx, hold.ID, "b", "case closed")
	require.NoError(t, err)
	assert.Equal(t, datastore.HoldReleased, released.Status)
	assert.Equal(t, "b", released.ReleasedBy)
	assert.Equal(t, "case closed", released.ReleaseReason)
	require.NotNil(t, released.ReleasedAt)

	// A released hold cannot be released again.
	_, err = r.ReleaseHold(ctx, hold.ID, "b", "again")
	require.Error(t, err)

	protected, err := r.IsProtected("doc-1")
	require.NoError(t, err)
	assert.False(t, protected)
}

func TestReleaseUnknownHold(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	_, err := r.ReleaseHold(context.Background(), "missing", "b", "r")
	assert.True(t, errors.IsNotFound(err))
}

func TestIsProtected(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	ctx := context.Background()

	protected, err := r.IsProtected("doc-1")
	require.NoError(t, err)
	assert.False(t, protected)

	future := time.Now().Add(time.Hour)
	_, err = r.CreateHold(ctx, "doc-1", "litigation", "a", &future)
	require.NoError(t, err)

	protected, err = r.IsProtected("doc-1")
	require.NoError(t, err)
	assert.True(t, protected)
}

func TestPassiveExpiry(t *testing.T) {
	t.Parallel()

	r, store := newTestRegistry()
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	hold, err := r.CreateHold(ctx, "doc-1", "litigation", "a", &expiry)
	require.NoError(t, err)

	// Move the registry clock past the expiry. Nothing sweeps the row:
	// it stays stored as ACTIVE, but the predicate treats it as expired.
	r.now = func() time.Time { return expiry.Add(time.Minute) }

	protected, err := r.IsProtected("doc-1")
	require.NoError(t, err)
	assert.False(t, protected)

	stored, err := store.GetLegalHold(hold.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.HoldActive, stored.Status)
}

func TestExpiredHoldIsSuperseded(t *testing.T) {
	t.Parallel()

	r, store := newTestRegistry()
	ctx := context.Background()

	expiry := time.Now().Add(-time.Hour)
	old, err := r.CreateHold(ctx, "doc-1", "old matter", "a", &expiry)
	require.NoError(t, err)

	// The expired hold does not block a new one; it is released in place.
	fresh, err := r.CreateHold(ctx, "doc-1", "new matter", "b", nil)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	stored, err := store.GetLegalHold(old.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.HoldReleased, stored.Status)

	protected, err := r.IsProtected("doc-1")
	require.NoError(t, err)
	assert.True(t, protected)
}

// casHookStore runs a hook just before the status swap, mimicking work
// that arrives while a transition is in flight.
type casHookStore struct {
	*testutil.MemStore
	hook func()
}

func (s *casHookStore) CompareAndSwapStatus(id string, from, to, preDelete datastore.Status) error {
	if h := s.hook; h != nil {
		s.hook = nil
		h()
	}
	return s.MemStore.CompareAndSwapStatus(id, from, to, preDelete)
}

func TestHoldCannotLandMidTransition(t *testing.T) {
	t.Parallel()

	mem := testutil.NewMemStore()
	store := &casHookStore{MemStore: mem}
	registry := NewRegistry(store, audit.Discard{})
	machine := lifecycle.NewMachine(store, registry, audit.Discard{})
	ctx := context.Background()

	require.NoError(t, mem.SaveDocument(&datastore.Document{ID: "doc-race", Status: datastore.StatusOut}))

	// A hold requested between the guard check and the status swap must
	// wait for the transition instead of slipping past the guard.
	holdDone := make(chan error, 1)
	store.hook = func() {
		go func() {
			_, err := registry.CreateHold(ctx, "doc-race", "litigation", "counsel", nil)
			holdDone <- err
		}()
		time.Sleep(50 * time.Millisecond)
		protected, err := registry.IsProtected("doc-race")
		require.NoError(t, err)
		assert.False(t, protected, "hold must not land while the transition holds the document lock")
	}

	require.NoError(t, machine.Transition(ctx, "doc-race", datastore.StatusArchived, "operator", nil))
	require.NoError(t, <-holdDone)

	doc, err := mem.GetDocument("doc-race")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusArchived, doc.Status)
	protected, err := registry.IsProtected("doc-race")
	require.NoError(t, err)
	assert.True(t, protected, "the queued hold applies once the transition completes")
}

func TestReleaseHoldSerializesOnDocument(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry()
	ctx := context.Background()

	hold, err := r.CreateHold(ctx, "doc-lock", "matter", "a", nil)
	require.NoError(t, err)

	unlock := lifecycle.LockDocument("doc-lock")
	released := make(chan error, 1)
	go func() {
		_, err := r.ReleaseHold(ctx, hold.ID, "b", "resolved")
		released <- err
	}()

	select {
	case <-released:
		t.Fatal("release must wait for the document lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	require.NoError(t, <-released)
}
