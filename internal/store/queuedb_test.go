package store

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

func testQueueDB(t *testing.T) *QueueDB {
	t.Helper()
	db, err := NewQueueDB(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTask(id string, taskType domain.TaskType, trackID string, priority int) *domain.Task {
	now := time.Now()
	return &domain.Task{
		TaskID:    id,
		Type:      taskType,
		TrackID:   trackID,
		Priority:  priority,
		Status:    domain.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEnqueueTaskDeduplicates(t *testing.T) {
	db := testQueueDB(t)

	if err := db.EnqueueTask(newTask("t1", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	// Same (type, track) while pending: silently ignored.
	if err := db.EnqueueTask(newTask("t2", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	// Different type for the same track is a distinct task.
	if err := db.EnqueueTask(newTask("t3", domain.TaskResolveArtist, "track-1", 7)); err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetTaskStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Queued != 2 {
		t.Errorf("Queued = %d, want 2", stats.Queued)
	}
}

func TestEnqueueAfterCompletionAllowed(t *testing.T) {
	db := testQueueDB(t)

	if err := db.EnqueueTask(newTask("t1", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	task, err := db.ClaimNextTask()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.CompleteTask(task.TaskID); err != nil {
		t.Fatal(err)
	}

	// Completed tasks no longer block re-enqueueing the same work.
	if err := db.EnqueueTask(newTask("t2", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.GetTaskStats()
	if stats.Queued != 1 || stats.Completed != 1 {
		t.Errorf("stats = %+v, want 1 queued and 1 completed", stats)
	}
}

func TestClaimNextTaskOrdering(t *testing.T) {
	db := testQueueDB(t)

	low := newTask("low", domain.TaskEnrichTrack, "track-1", 1)
	low.CreatedAt = time.Now().Add(-2 * time.Hour)
	high := newTask("high", domain.TaskResolveArtist, "track-2", 9)
	highLater := newTask("high-later", domain.TaskResolveArtist, "track-3", 9)
	highLater.CreatedAt = high.CreatedAt.Add(time.Minute)

	for _, task := range []*domain.Task{low, high, highLater} {
		if err := db.EnqueueTask(task); err != nil {
			t.Fatal(err)
		}
	}

	// Priority first, then oldest within a priority.
	want := []string{"high", "high-later", "low"}
	for _, w := range want {
		task, err := db.ClaimNextTask()
		if err != nil {
			t.Fatal(err)
		}
		if task == nil {
			t.Fatalf("queue drained early, want %s", w)
		}
		if task.TaskID != w {
			t.Errorf("claimed %s, want %s", task.TaskID, w)
		}
		if task.Status != domain.TaskStatusRunning {
			t.Errorf("claimed task status = %s, want running", task.Status)
		}
		if task.Attempts != 1 {
			t.Errorf("attempts = %d, want 1", task.Attempts)
		}
	}
	if task, _ := db.ClaimNextTask(); task != nil {
		t.Errorf("drained queue returned %+v", task)
	}
}

func TestClaimSkipsDelayedTasks(t *testing.T) {
	db := testQueueDB(t)

	delayed := newTask("delayed", domain.TaskEnrichTrack, "track-1", 9)
	future := time.Now().Add(time.Hour)
	delayed.NotBefore = &future
	ready := newTask("ready", domain.TaskEnrichTrack, "track-2", 1)

	if err := db.EnqueueTask(delayed); err != nil {
		t.Fatal(err)
	}
	if err := db.EnqueueTask(ready); err != nil {
		t.Fatal(err)
	}

	task, err := db.ClaimNextTask()
	if err != nil {
		t.Fatal(err)
	}
	if task == nil || task.TaskID != "ready" {
		t.Fatalf("claimed %+v, want the ready task despite lower priority", task)
	}
}

func TestFailTaskRetryAndDeadLetter(t *testing.T) {
	db := testQueueDB(t)

	if err := db.EnqueueTask(newTask("t1", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	task, _ := db.ClaimNextTask()

	// Retriable failure: requeued with a delay, invisible to claims.
	if err := db.FailTask(task.TaskID, "rate limited", time.Hour, 5); err != nil {
		t.Fatal(err)
	}
	if next, _ := db.ClaimNextTask(); next != nil {
		t.Errorf("delayed retry claimed early: %+v", next)
	}
	stats, _ := db.GetTaskStats()
	if stats.Queued != 1 {
		t.Errorf("Queued = %d, want 1", stats.Queued)
	}

	// Terminal failure goes straight to dead.
	if err := db.FailTask(task.TaskID, "no such track", -1, 5); err != nil {
		t.Fatal(err)
	}
	stats, _ = db.GetTaskStats()
	if stats.Dead != 1 {
		t.Errorf("Dead = %d, want 1", stats.Dead)
	}
}

func TestFailTaskExhaustedAttempts(t *testing.T) {
	db := testQueueDB(t)

	if err := db.EnqueueTask(newTask("t1", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	task, _ := db.ClaimNextTask()

	// Attempts already at the cap: a retriable error still dead-letters.
	if err := db.FailTask(task.TaskID, "still failing", time.Second, 1); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.GetTaskStats()
	if stats.Dead != 1 {
		t.Errorf("Dead = %d, want 1", stats.Dead)
	}
}

func TestResetStuckTasks(t *testing.T) {
	db := testQueueDB(t)

	if err := db.EnqueueTask(newTask("t1", domain.TaskEnrichTrack, "track-1", 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ClaimNextTask(); err != nil {
		t.Fatal(err)
	}

	if err := db.ResetStuckTasks(); err != nil {
		t.Fatal(err)
	}
	task, err := db.ClaimNextTask()
	if err != nil {
		t.Fatal(err)
	}
	if task == nil || task.TaskID != "t1" {
		t.Fatalf("stuck task not requeued: %+v", task)
	}
	if task.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 after reclaim", task.Attempts)
	}
}

func TestResponseCache(t *testing.T) {
	db := testQueueDB(t)

	if got, err := db.GetCache("missing"); err != nil || got != nil {
		t.Fatalf("miss = (%v, %v), want (nil, nil)", got, err)
	}

	if err := db.SetCache("k", []byte("v1"), time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetCache("k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Errorf("GetCache = %q, want v1", got)
	}

	// Overwrite through the conflict path.
	if err := db.SetCache("k", []byte("v2"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.GetCache("k"); !bytes.Equal(got, []byte("v2")) {
		t.Errorf("GetCache after overwrite = %q, want v2", got)
	}

	// Expired entries read as misses and are reaped.
	if err := db.SetCache("old", []byte("x"), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if got, _ := db.GetCache("old"); got != nil {
		t.Errorf("expired entry served: %q", got)
	}

	if err := db.ClearCache(); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.GetCache("k"); got != nil {
		t.Errorf("GetCache after clear = %q, want nil", got)
	}
}
