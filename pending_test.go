package peerlink

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestPendingTable_Resolve(t *testing.T) {
	table := newPendingTable()
	id := uuid.New()

	q := table.add(id, reflect.TypeFor[Sum]())

	if typ, ok := table.expected(id); !ok || typ != reflect.TypeFor[Sum]() {
		t.Errorf("expected() = %v, %v", typ, ok)
	}

	if !table.resolve(id, Sum{Value: 1}, nil) {
		t.Fatal("resolve returned false for a waiting query")
	}

	<-q.done
	if q.reply.(Sum).Value != 1 || q.err != nil {
		t.Errorf("query completed with %v, %v", q.reply, q.err)
	}

	if table.resolve(id, Sum{Value: 2}, nil) {
		t.Error("second resolve should be dropped")
	}
	if table.len() != 0 {
		t.Errorf("len = %d, want 0", table.len())
	}
}

func TestPendingTable_Remove(t *testing.T) {
	table := newPendingTable()
	id := uuid.New()

	table.add(id, reflect.TypeFor[Sum]())
	table.remove(id)

	if _, ok := table.expected(id); ok {
		t.Error("removed query still expected")
	}
	if table.resolve(id, Sum{}, nil) {
		t.Error("resolve after remove should be dropped")
	}
}

func TestPendingTable_FailAll(t *testing.T) {
	table := newPendingTable()

	queries := make([]*pendingQuery, 5)
	for i := range queries {
		queries[i] = table.add(uuid.New(), reflect.TypeFor[Sum]())
	}

	table.failAll(ErrConnectionClosed)

	for i, q := range queries {
		<-q.done
		if !errors.Is(q.err, ErrConnectionClosed) {
			t.Errorf("query %d: err = %v, want ErrConnectionClosed", i, q.err)
		}
	}
	if table.len() != 0 {
		t.Errorf("len = %d, want 0", table.len())
	}
}

func TestPendingQuery_CompleteOnce(t *testing.T) {
	q := &pendingQuery{done: make(chan struct{})}

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if q.complete(Sum{Value: i}, nil) {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if completed != 1 {
		t.Errorf("completed %d times, want 1", completed)
	}
}
