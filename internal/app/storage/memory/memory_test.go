package memory

import (
	"context"
	"testing"

	"github.com/R3E-Network/gm_engine/internal/app/storage"
)

func TestCompareAndSet_NilExpectedMeansAbsent(t *testing.T) {
	kv := New()
	ctx := context.Background()

	ok, err := kv.CompareAndSet(ctx, "k", nil, []byte("v1"))
	if err != nil || !ok {
		t.Fatalf("create of absent key should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = kv.CompareAndSet(ctx, "k", nil, []byte("v2"))
	if err != nil || ok {
		t.Fatalf("create of existing key should conflict: ok=%v err=%v", ok, err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("losing write must not land: %q, %v", got, err)
	}
}

func TestCompareAndSet_RequiresExactCurrentValue(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := kv.CompareAndSet(ctx, "k", []byte("stale"), []byte("v2"))
	if err != nil || ok {
		t.Fatalf("stale expected value should conflict: ok=%v err=%v", ok, err)
	}
	ok, err = kv.CompareAndSet(ctx, "k", []byte("v1"), []byte("v2"))
	if err != nil || !ok {
		t.Fatalf("matching expected value should succeed: ok=%v err=%v", ok, err)
	}
	got, _ := kv.Get(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}

	// Against a missing key, a non-nil expectation conflicts.
	ok, err = kv.CompareAndSet(ctx, "absent", []byte("v1"), []byte("v2"))
	if err != nil || ok {
		t.Fatalf("missing key with expectation should conflict: ok=%v err=%v", ok, err)
	}
}

func TestGet_MissingKeyReturnsErrNotFound(t *testing.T) {
	kv := New()
	if _, err := kv.Get(context.Background(), "absent"); err != storage.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.Set(ctx, "k", []byte("abc")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got[0] = 'z'
	again, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestDelete_SpansAllStructures(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.Set(ctx, "plain", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.SortedSetSet(ctx, "board", "m", 1); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if err := kv.SetAdd(ctx, "members", "m"); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	if err := kv.Delete(ctx, "plain", "board", "members"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, err := kv.ScanKeys(ctx, "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys survived delete: %v", keys)
	}
}

func TestScanKeys_CoversAllStructuresSorted(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.Set(ctx, "b:plain", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.SortedSetSet(ctx, "a:board", "m", 1); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if err := kv.SetAdd(ctx, "c:members", "m"); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	keys, err := kv.ScanKeys(ctx, "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"a:board", "b:plain", "c:members"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestSortedSetRevRange_OrderOffsetLimit(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.SortedSetIncrBy(ctx, "board", "low", 1); err != nil {
		t.Fatalf("zincrby: %v", err)
	}
	if err := kv.SortedSetIncrBy(ctx, "board", "mid", 5); err != nil {
		t.Fatalf("zincrby: %v", err)
	}
	if err := kv.SortedSetIncrBy(ctx, "board", "high", 4); err != nil {
		t.Fatalf("zincrby: %v", err)
	}
	if err := kv.SortedSetIncrBy(ctx, "board", "high", 5); err != nil {
		t.Fatalf("zincrby: %v", err)
	}

	members, err := kv.SortedSetRevRange(ctx, "board", 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(members) != 3 || members[0].Member != "high" || members[0].Score != 9 ||
		members[1].Member != "mid" || members[2].Member != "low" {
		t.Fatalf("unexpected order: %+v", members)
	}

	members, err = kv.SortedSetRevRange(ctx, "board", 1, 1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(members) != 1 || members[0].Member != "mid" {
		t.Fatalf("offset/limit window wrong: %+v", members)
	}

	members, err = kv.SortedSetRevRange(ctx, "board", 10, 5)
	if err != nil || members != nil {
		t.Fatalf("out-of-range offset should be empty: %+v, %v", members, err)
	}
}

func TestSetAddAndCount(t *testing.T) {
	kv := New()
	ctx := context.Background()

	for _, member := range []string{"a", "b", "a"} {
		if err := kv.SetAdd(ctx, "members", member); err != nil {
			t.Fatalf("sadd: %v", err)
		}
	}
	n, err := kv.SetCount(ctx, "members")
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}
	n, err = kv.SetCount(ctx, "absent")
	if err != nil || n != 0 {
		t.Fatalf("absent count = %d, %v; want 0", n, err)
	}
}
