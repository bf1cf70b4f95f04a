package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hyperjump/assethub/internal/models"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisQueue(context.Background(), RedisConfig{Addr: mr.Addr(), Name: "test"})
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	job := &models.VectorizationJob{ID: "j1", AssetID: "asset-1", AssetType: models.AssetVideo}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("queue:test") {
		t.Fatal("ready list not created")
	}
	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AssetID != "asset-1" || got.AssetType != models.AssetVideo || got.Attempt != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestRedisQueue_Delayed(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.EnqueueAfter(ctx, &models.VectorizationJob{AssetID: "a", Attempt: 3}, 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Errorf("Len=%d, want 1", n)
	}

	time.Sleep(80 * time.Millisecond)
	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Attempt != 3 {
		t.Fatalf("expected promoted job, got %+v", got)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("Len=%d after dequeue, want 0", n)
	}
}

func TestRedisQueue_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisQueue(ctx, RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected connection error")
	}
}
