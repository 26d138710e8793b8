package region

import (
	"sync"
	"testing"

	"github.com/kolkov/dvstm/internal/stm/segment"
)

func TestNewSegTableEmpty(t *testing.T) {
	st := newSegTable()
	if st.len() != 0 {
		t.Errorf("len() = %d, want 0", st.len())
	}
	if _, ok := st.get(1); ok {
		t.Error("get() found an entry in an empty table")
	}
}

func TestPublishReplacesSnapshot(t *testing.T) {
	st := newSegTable()
	seg := segment.New(1, 64, 8)

	next := st.load().Set(1, seg)
	st.publish(next)

	got, ok := st.get(1)
	if !ok || got != seg {
		t.Fatal("get() did not see the published segment")
	}
	if st.len() != 1 {
		t.Errorf("len() = %d, want 1", st.len())
	}
}

func TestPublishedSnapshotIsImmutable(t *testing.T) {
	st := newSegTable()
	seg1 := segment.New(1, 64, 8)
	st.publish(st.load().Set(1, seg1))

	old := st.load()

	seg2 := segment.New(2, 64, 8)
	st.publish(st.load().Set(2, seg2))

	if old.Len() != 1 {
		t.Errorf("previously loaded snapshot mutated: len() = %d, want 1", old.Len())
	}
	if st.len() != 2 {
		t.Errorf("current snapshot len() = %d, want 2", st.len())
	}
}

func TestDeleteFromSnapshot(t *testing.T) {
	st := newSegTable()
	seg := segment.New(1, 64, 8)
	st.publish(st.load().Set(1, seg))

	st.publish(st.load().Delete(1))

	if _, ok := st.get(1); ok {
		t.Error("get() still found a deleted segment")
	}
	if st.len() != 0 {
		t.Errorf("len() = %d after delete, want 0", st.len())
	}
}

func TestInsertAndRemove(t *testing.T) {
	st := newSegTable()
	seg := segment.New(1, 64, 8)

	st.insert(1, seg)
	got, ok := st.get(1)
	if !ok || got != seg {
		t.Fatal("get() did not see the inserted segment")
	}

	st.remove(1)
	if _, ok := st.get(1); ok {
		t.Error("get() still found a removed segment")
	}
}

func TestConcurrentInsertNoLostUpdate(t *testing.T) {
	st := newSegTable()

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := uint8(i + 1)
		go func() {
			defer wg.Done()
			st.insert(id, segment.New(id, 64, 8))
		}()
	}
	wg.Wait()

	if st.len() != n {
		t.Errorf("len() = %d, want %d — a concurrent insert lost an update", st.len(), n)
	}
	for i := 0; i < n; i++ {
		if _, ok := st.get(uint8(i + 1)); !ok {
			t.Errorf("segment %d missing after concurrent insert", i+1)
		}
	}
}
