package tasklog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/log"
	"github.com/mattjoyce/lanes/internal/queue"
	"github.com/mattjoyce/lanes/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "lanes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func record(owner, q string, id int64, status queue.Status, settled time.Time) queue.TaskRecord {
	return queue.TaskRecord{
		Owner:      owner,
		Queue:      q,
		TaskID:     id,
		Ref:        uuid.NewString(),
		Status:     status,
		Attempts:   1,
		EnqueuedAt: settled.Add(-time.Second),
		SettledAt:  settled,
	}
}

func TestStore_InsertAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	failed := record("mailer", "send", 2, queue.StatusDone, now)
	failed.Error = "exit status 1"
	failed.Attempts = 3
	require.NoError(t, store.Insert(ctx, record("mailer", "send", 1, queue.StatusDone, now.Add(-time.Minute))))
	require.NoError(t, store.Insert(ctx, failed))
	require.NoError(t, store.Insert(ctx, record("hooks", "post", 3, queue.StatusDiscarded, now)))

	entries, err := store.List(ctx, "mailer", "send", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.EqualValues(t, 2, entries[0].TaskID)
	assert.Equal(t, "exit status 1", entries[0].LastError)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.WithinDuration(t, now, entries[0].SettledAt, time.Millisecond)
	assert.EqualValues(t, 1, entries[1].TaskID)

	all, err := store.List(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.List(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_InsertRejectsUnsettled(t *testing.T) {
	store := openStore(t)
	err := store.Insert(context.Background(), record("a", "b", 1, queue.StatusExecuting, time.Now()))
	assert.ErrorContains(t, err, "invalid terminal status")

	rec := record("a", "b", 1, queue.StatusDone, time.Now())
	rec.Ref = ""
	assert.Error(t, store.Insert(context.Background(), rec))
}

func TestStore_Prune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, record("a", "q", 1, queue.StatusDone, now.Add(-48*time.Hour))))
	require.NoError(t, store.Insert(ctx, record("a", "q", 2, queue.StatusDone, now)))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := store.List(ctx, "a", "q", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].TaskID)
}

func TestRecorder_RecordsDispatcherEvents(t *testing.T) {
	store := openStore(t)
	hub := events.NewHub(32)
	rec := NewRecorder(store, hub, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	d, err := queue.New(queue.Config{
		Owner: "mailer",
		ID:    "send",
		Operation: func(ctx context.Context, args ...any) (any, error) {
			return args[0], nil
		},
		Options: queue.NewOptions(queue.WithLength(1), queue.WithObjectify(true)),
		Hub:     hub,
	})
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	kept := d.Push("kept")
	d.Push("dropped")
	d.Start(ctx)
	_, err = kept.Wait(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		entries, err := store.List(context.Background(), "mailer", "send", 0)
		return err == nil && len(entries) == 2
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := store.List(context.Background(), "mailer", "send", 0)
	require.NoError(t, err)
	byStatus := map[queue.Status]Entry{}
	for _, e := range entries {
		byStatus[e.Status] = e
	}
	assert.Equal(t, "kept", byStatus[queue.StatusDone].Result)
	assert.Equal(t, string(queue.ReasonOverflow), byStatus[queue.StatusDiscarded].Reason)
	assert.Equal(t, kept.Ref, byStatus[queue.StatusDone].Ref)

	cancel()
	require.NoError(t, <-done)
}

func TestRecorder_IgnoresOtherEvents(t *testing.T) {
	store := openStore(t)
	rec := NewRecorder(store, events.NewHub(4), 0)
	t.Cleanup(func() { rec.unsubscribe() })

	err := rec.Record(context.Background(), events.Event{Type: queue.HubQueueIdle, Data: []byte(`{}`)})
	require.NoError(t, err)

	err = rec.Record(context.Background(), events.Event{Type: queue.HubTaskDone, Data: []byte(`not json`)})
	assert.Error(t, err)
}
