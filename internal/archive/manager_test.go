package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarling/podkeeper/internal/audit"
	"github.com/mkarling/podkeeper/internal/blob"
	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/errors"
	"github.com/mkarling/podkeeper/internal/lifecycle"
	"github.com/mkarling/podkeeper/internal/testutil"
)

// scriptedGuard returns its answers in sequence, repeating the last one.
type scriptedGuard struct {
	answers []bool
	calls   int
}

func (g *scriptedGuard) IsProtected(string) (bool, error) {
	i := g.calls
	g.calls++
	if i >= len(g.answers) {
		i = len(g.answers) - 1
	}
	return g.answers[i], nil
}

type fixture struct {
	manager *Manager
	store   *testutil.MemStore
	blobs   *blob.LocalStore
	dir     string
}

func newFixture(t *testing.T, guard lifecycle.HoldGuard) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := testutil.NewMemStore()
	machine := lifecycle.NewMachine(store, guard, audit.Discard{})
	blobs := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	settings := conf.ArchiveSettings{
		Path:                  filepath.Join(dir, "archives"),
		ScratchPath:           filepath.Join(dir, "scratch"),
		PurgeBlobOnHardDelete: true,
	}
	return &fixture{
		manager: NewManager(settings, store, machine, guard, blobs, audit.Discard{}),
		store:   store,
		blobs:   blobs,
		dir:     dir,
	}
}

func (f *fixture) seedDocument(t *testing.T, id string, status datastore.Status, withContent bool) {
	t.Helper()
	doc := &datastore.Document{
		ID:          id,
		Status:      status,
		ContentHash: "hash-" + id,
		Supplier:    "acme",
		Metadata:    `{"pages":1}`,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	if withContent {
		doc.ContentKey = id + ".jpg"
		require.NoError(t, f.blobs.Put(context.Background(), doc.ContentKey,
			strings.NewReader("image-bytes-"+id)))
	}
	require.NoError(t, f.store.SaveDocument(doc))
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusOut, true)
	ctx := context.Background()

	rec, err := f.manager.Archive(ctx, "d1", "operator")
	require.NoError(t, err)
	assert.Equal(t, datastore.ArchiveArchived, rec.Status)
	assert.Equal(t, "d1", rec.OriginalDocumentID)
	assert.NotEmpty(t, rec.Checksum)
	assert.FileExists(t, rec.ArchiveLocation)

	doc, err := f.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusArchived, doc.Status)

	restored, err := f.manager.Restore(ctx, rec.ID, "operator")
	require.NoError(t, err)

	// A restore mints a new document; the original never reverts.
	assert.NotEqual(t, "d1", restored.ID)
	assert.Equal(t, datastore.StatusRestored, restored.Status)
	assert.Equal(t, "hash-d1", restored.ContentHash)
	assert.Equal(t, `{"pages":1}`, restored.Metadata)

	original, err := f.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusArchived, original.Status)

	stored, err := f.store.GetArchiveRecord(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.ArchiveRestored, stored.Status)
	assert.Equal(t, restored.ID, stored.RestoredDocumentID)
	assert.Equal(t, "operator", stored.RestoredBy)
	require.NotNil(t, stored.RestoredAt)
	assert.NotEmpty(t, stored.RestoreLocation)
}

func TestArchiveProtectedDocumentFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{true}})
	f.seedDocument(t, "d1", datastore.StatusOut, false)

	_, err := f.manager.Archive(context.Background(), "d1", "operator")
	require.Error(t, err)
	assert.True(t, errors.IsProtected(err))

	// Status unchanged, no record, no bundle.
	doc, getErr := f.store.GetDocument("d1")
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusOut, doc.Status)
	assert.Empty(t, f.store.Archives)
}

func TestArchiveAlreadyArchivedFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusArchived, false)

	_, err := f.manager.Archive(context.Background(), "d1", "operator")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestArchiveRollsBackOnTransitionFailure(t *testing.T) {
	t.Parallel()

	// The early protection check passes, then a hold lands before the
	// lifecycle transition re-checks. All partial artifacts must go.
	f := newFixture(t, &scriptedGuard{answers: []bool{false, true}})
	f.seedDocument(t, "d1", datastore.StatusOut, false)

	_, err := f.manager.Archive(context.Background(), "d1", "operator")
	require.Error(t, err)
	assert.True(t, errors.IsProtected(err))

	assert.Empty(t, f.store.Archives, "no orphan archive record may survive")
	bundles, globErr := filepath.Glob(filepath.Join(f.dir, "archives", "*"))
	require.NoError(t, globErr)
	assert.Empty(t, bundles, "no orphan bundle may survive")

	doc, getErr := f.store.GetDocument("d1")
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusOut, doc.Status)
}

func TestRestoreRequiresArchivedRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusOut, false)
	ctx := context.Background()

	rec, err := f.manager.Archive(ctx, "d1", "operator")
	require.NoError(t, err)

	_, err = f.manager.Restore(ctx, rec.ID, "operator")
	require.NoError(t, err)

	// A second restore fails: the record is already RESTORED.
	_, err = f.manager.Restore(ctx, rec.ID, "operator")
	require.Error(t, err)
}

func TestRestoreChecksumMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusOut, false)
	ctx := context.Background()

	rec, err := f.manager.Archive(ctx, "d1", "operator")
	require.NoError(t, err)

	// Corrupt the recorded checksum to simulate bundle tampering.
	rec.Checksum = "0000000000000000000000000000000000000000000000000000000000000000"
	require.NoError(t, f.store.UpdateArchiveRecord(rec))

	_, err = f.manager.Restore(ctx, rec.ID, "operator")
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusOut, true)
	ctx := context.Background()

	rec, err := f.manager.Archive(ctx, "d1", "operator")
	require.NoError(t, err)
	require.NoError(t, f.manager.Verify(ctx, rec.ID))

	rec.Checksum = "deadbeef"
	require.NoError(t, f.store.UpdateArchiveRecord(rec))
	err = f.manager.Verify(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, errors.IsConsistency(err))
}

func TestHardDeletePurgesBlob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusPendingDelete, true)
	ctx := context.Background()

	exists, err := f.blobs.Exists(ctx, "d1.jpg")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, f.manager.HardDelete(ctx, "d1", "operator"))

	doc, err := f.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusDeleted, doc.Status)

	exists, err = f.blobs.Exists(ctx, "d1.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSoftDeleteUndeleteWrappers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &scriptedGuard{answers: []bool{false}})
	f.seedDocument(t, "d1", datastore.StatusOut, false)
	ctx := context.Background()

	require.NoError(t, f.manager.SoftDelete(ctx, "d1", "operator"))
	doc, err := f.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusPendingDelete, doc.Status)

	require.NoError(t, f.manager.Undelete(ctx, "d1", "operator"))
	doc, err = f.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusOut, doc.Status)
}

func TestBundleRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "b.tar.gz")
	manifest := []byte("version: 1\n")
	content := []byte{0xff, 0xd8, 0xff, 0xe0}

	require.NoError(t, writeBundle(path, manifest, content))

	gotManifest, gotContent, err := readBundle(path)
	require.NoError(t, err)
	assert.Equal(t, manifest, gotManifest)
	assert.Equal(t, content, gotContent)

	// No stray temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
