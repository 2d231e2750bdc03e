package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemorySmallItemTable_PutGetRoundTrip(t *testing.T) {
	tbl := NewMemorySmallItemTable(0)
	ctx := context.Background()

	rec := &Record{ID: "abc", Body: "hello", Headers: map[string]string{"Content-Type": "text/plain"}}
	if err := tbl.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, ok, err := tbl.Get(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, err=%v ok=%v", err, ok)
	}
	if got.Body != "hello" || got.Headers["Content-Type"] != "text/plain" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemorySmallItemTable_CeilingEnforced(t *testing.T) {
	tbl := NewMemorySmallItemTable(4)
	ctx := context.Background()

	if err := tbl.Put(ctx, &Record{ID: "ok", Body: "1234"}); err != nil {
		t.Fatalf("expected record at ceiling to be accepted: %v", err)
	}
	err := tbl.Put(ctx, &Record{ID: "big", Body: "12345"})
	if err == nil {
		t.Fatalf("expected error for record exceeding ceiling")
	}
	if !strings.Contains(err.Error(), "exceeds ceiling") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemorySmallItemTable_LazyTTLPurgeOnGet(t *testing.T) {
	tbl := NewMemorySmallItemTable(0)
	ctx := context.Background()
	tbl.Put(ctx, &Record{ID: "x", Body: "y", PurgeAt: time.Now().Add(-time.Minute).Unix()})

	_, ok, err := tbl.Get(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected expired-by-purgeAt row to read as miss")
	}
}

func TestMemorySmallItemTable_Sweep(t *testing.T) {
	tbl := NewMemorySmallItemTable(0)
	ctx := context.Background()
	tbl.Put(ctx, &Record{ID: "expired", PurgeAt: time.Now().Add(-time.Minute).Unix()})
	tbl.Put(ctx, &Record{ID: "fresh", PurgeAt: time.Now().Add(time.Hour).Unix()})

	removed := tbl.Sweep(ctx)
	if removed != 1 {
		t.Fatalf("expected 1 row swept, got %d", removed)
	}
	_, ok, _ := tbl.Get(ctx, "fresh")
	if !ok {
		t.Fatalf("fresh row should survive sweep")
	}
}

func TestMemoryLargeObjectStore_RoundTrip(t *testing.T) {
	store := NewMemoryLargeObjectStore("bodies")
	ctx := context.Background()

	if err := store.Put(ctx, "id1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Get(ctx, "id1")
	if err != nil || !ok {
		t.Fatalf("expected hit, err=%v ok=%v", err, ok)
	}
	if string(got) != "payload" {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestMemoryLargeObjectStore_DeleteThenMiss(t *testing.T) {
	store := NewMemoryLargeObjectStore("")
	ctx := context.Background()
	store.Put(ctx, "id1", []byte("payload"))
	store.Delete(ctx, "id1")

	_, ok, _ := store.Get(ctx, "id1")
	if ok {
		t.Fatalf("expected miss after delete")
	}
}
