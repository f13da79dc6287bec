package transcription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/rollup"
	"github.com/hyperjump/nikki/internal/storage"
	"github.com/hyperjump/nikki/internal/summarizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var morning = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

// fakeTranscriber returns "text of <chunk>" unless the chunk is set to fail. When gate is set,
// every call waits for a value on it.
type fakeTranscriber struct {
	gate chan struct{}

	mu        sync.Mutex
	fail      map[string]error
	silent    map[string]bool
	active    int
	maxActive int
	calls     int
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{fail: map[string]error{}, silent: map[string]bool{}}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, chunk *models.AudioChunk) ([]*models.TranscriptSegment, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	err := f.fail[chunk.ID]
	silent := f.silent[chunk.ID]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if silent {
		return nil, nil
	}
	return []*models.TranscriptSegment{{EndOffset: 30, Text: "text of " + chunk.ID, Confidence: 0.8}}, nil
}

func (f *fakeTranscriber) setFail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, id)
		return
	}
	f.fail[id] = err
}

func (f *fakeTranscriber) max() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

type recordingTrigger struct {
	mu       sync.Mutex
	sessions []string
}

func (r *recordingTrigger) CheckAndGenerateSessionSummary(_ context.Context, sessionID string) {
	r.mu.Lock()
	r.sessions = append(r.sessions, sessionID)
	r.mu.Unlock()
}

func (r *recordingTrigger) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sessions...)
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addChunks(t *testing.T, store storage.Storage, sessionID string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("%s-c%d", sessionID, i)
		require.NoError(t, store.CreateChunk(context.Background(), &models.AudioChunk{
			ID:         ids[i],
			SessionID:  sessionID,
			ChunkIndex: i,
			AudioPath:  "/audio/" + ids[i] + ".m4a",
			StartedAt:  morning.Add(time.Duration(i) * time.Minute),
			EndedAt:    morning.Add(time.Duration(i+1) * time.Minute),
		}))
	}
	return ids
}

func TestCoordinator_transcribesAndTriggers(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 2)
	rec := &events.Recorder{}
	trigger := &recordingTrigger{}
	c := NewCoordinator(store, newFakeTranscriber(), trigger, WithPublisher(rec), WithLocation(time.UTC))
	defer c.Close()

	for _, id := range ids {
		assert.True(t, c.Enqueue(id))
	}
	c.Wait()

	status := c.Status()
	assert.Equal(t, ids, status.Transcribed)
	assert.Empty(t, status.Transcribing)
	assert.Empty(t, status.Failed)
	assert.Empty(t, status.Pending)
	assert.Equal(t, []string{"s1", "s1"}, trigger.calls())
	assert.Equal(t, 2, rec.Count(events.ChunkTranscribed))

	segs, err := store.ListSegments(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "text of s1-c0", segs[0].Text)

	complete, err := store.IsSessionTranscriptionComplete(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, complete)

	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	insights, err := store.ListInsights(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, 6, insights[0].WordCount)
	assert.Equal(t, 2, insights[0].SegmentCount)
}

func TestCoordinator_continuousAdmission(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 5)
	ft := newFakeTranscriber()
	ft.gate = make(chan struct{})
	c := NewCoordinator(store, ft, nil, WithConcurrency(2))
	defer c.Close()

	for _, id := range ids {
		c.Enqueue(id)
	}
	require.Eventually(t, func() bool {
		s := c.Status()
		return len(s.Transcribing) == 2 && len(s.Pending) == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, c.Enqueue(ids[0]), "in-flight chunk must not be queued twice")
	assert.False(t, c.Enqueue(ids[4]), "queued chunk must not be queued twice")

	// finishing one chunk immediately admits the next
	ft.gate <- struct{}{}
	require.Eventually(t, func() bool {
		s := c.Status()
		return len(s.Transcribed) == 1 && len(s.Transcribing) == 2 && len(s.Pending) == 2
	}, 2*time.Second, 10*time.Millisecond)

	close(ft.gate)
	c.Wait()
	assert.Len(t, c.Status().Transcribed, 5)
	assert.Equal(t, 2, ft.max())
}

func TestCoordinator_failureAndRetry(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 2)
	ft := newFakeTranscriber()
	ft.setFail(ids[1], errors.New("decoder crashed"))
	rec := &events.Recorder{}
	trigger := &recordingTrigger{}
	c := NewCoordinator(store, ft, trigger, WithPublisher(rec))
	defer c.Close()

	c.Enqueue(ids[0])
	c.Enqueue(ids[1])
	c.Wait()

	status := c.Status()
	assert.Equal(t, []string{ids[0]}, status.Transcribed)
	assert.Equal(t, []string{ids[1]}, status.Failed)
	assert.Equal(t, []string{"s1"}, trigger.calls(), "a failed chunk does not trigger the session")
	failed := rec.Events()
	require.Equal(t, 1, rec.Count(events.ChunkFailed))
	for _, ev := range failed {
		if ev.Kind == events.ChunkFailed {
			assert.Equal(t, "s1", ev.SessionID)
			assert.EqualError(t, ev.Err, "decoder crashed")
		}
	}

	ft.setFail(ids[1], nil)
	assert.True(t, c.Retry(ids[1]))
	c.Wait()
	status = c.Status()
	assert.Equal(t, ids, status.Transcribed)
	assert.Empty(t, status.Failed)
	assert.Equal(t, []string{"s1", "s1"}, trigger.calls())
}

func TestCoordinator_unknownChunkFails(t *testing.T) {
	store := newTestStore(t)
	c := NewCoordinator(store, newFakeTranscriber(), nil)
	defer c.Close()

	c.Enqueue("ghost")
	c.Wait()
	assert.Equal(t, []string{"ghost"}, c.Status().Failed)
}

func TestCoordinator_silentChunkCompletesSession(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 1)
	ft := newFakeTranscriber()
	ft.silent[ids[0]] = true
	c := NewCoordinator(store, ft, nil)
	defer c.Close()

	c.Enqueue(ids[0])
	c.Wait()

	complete, err := store.IsSessionTranscriptionComplete(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestCoordinator_enqueuePending(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 3)
	require.NoError(t, store.ReplaceSegments(context.Background(), ids[0],
		[]*models.TranscriptSegment{{Text: "already done"}}))

	ft := newFakeTranscriber()
	c := NewCoordinator(store, ft, nil)
	defer c.Close()

	n, err := c.EnqueuePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	c.Wait()
	assert.Equal(t, ids[1:], c.Status().Transcribed)
}

func TestCoordinator_closeCancelsAndRejects(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 4)
	ft := newFakeTranscriber()
	ft.gate = make(chan struct{})
	c := NewCoordinator(store, ft, nil, WithConcurrency(1))

	for _, id := range ids {
		c.Enqueue(id)
	}
	require.Eventually(t, func() bool { return len(c.Status().Transcribing) == 1 }, 2*time.Second, 10*time.Millisecond)

	c.Close()
	status := c.Status()
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Failed, 1, "the running chunk is cancelled")
	assert.False(t, c.Enqueue(ids[0]))
}

func TestCoordinator_partialSessionNeverSummarized(t *testing.T) {
	store := newTestStore(t)
	ids := addChunks(t, store, "s1", 2)
	engine := summarizer.NewMock()
	summaries := rollup.New(store, engine, rollup.WithLocation(time.UTC))
	ft := newFakeTranscriber()
	ft.setFail(ids[1], errors.New("corrupt audio"))
	c := NewCoordinator(store, ft, summaries)
	defer c.Close()

	c.Enqueue(ids[0])
	c.Enqueue(ids[1])
	c.Wait()
	for i := 0; i < 3; i++ {
		c.Retry(ids[1])
		c.Wait()
	}

	sum, err := store.GetSessionSummary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, sum)
	assert.Zero(t, engine.SessionCalls())

	ft.setFail(ids[1], nil)
	c.Retry(ids[1])
	c.Wait()

	sum, err = store.GetSessionSummary(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "summary of s1: text of s1-c0 text of s1-c1", sum.Text)
	assert.Equal(t, 1, engine.SessionCalls())
}
