package peerlink

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// pendingQuery is one query waiting for its reply.
type pendingQuery struct {
	replyType reflect.Type
	done      chan struct{}

	once  sync.Once
	reply QueryReply
	err   error
}

func (q *pendingQuery) complete(reply QueryReply, err error) bool {
	completed := false
	q.once.Do(func() {
		q.reply, q.err = reply, err
		close(q.done)
		completed = true
	})
	return completed
}

// pendingTable tracks the queries a connection sent and has not seen a
// reply for, keyed by frame id.
type pendingTable struct {
	mu      sync.Mutex
	queries map[uuid.UUID]*pendingQuery
}

func newPendingTable() *pendingTable {
	return &pendingTable{queries: make(map[uuid.UUID]*pendingQuery)}
}

// add registers a query expecting a reply of replyType.
func (t *pendingTable) add(id uuid.UUID, replyType reflect.Type) *pendingQuery {
	q := &pendingQuery{replyType: replyType, done: make(chan struct{})}
	t.mu.Lock()
	t.queries[id] = q
	t.mu.Unlock()
	return q
}

// expected returns the reply type registered for id.
func (t *pendingTable) expected(id uuid.UUID) (reflect.Type, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queries[id]
	if !ok {
		return nil, false
	}
	return q.replyType, true
}

// resolve completes and removes the query registered under id. It returns
// false when no such query is waiting, in which case the reply is dropped.
func (t *pendingTable) resolve(id uuid.UUID, reply QueryReply, err error) bool {
	t.mu.Lock()
	q, ok := t.queries[id]
	delete(t.queries, id)
	t.mu.Unlock()

	if !ok {
		return false
	}
	return q.complete(reply, err)
}

// remove forgets the query registered under id.
func (t *pendingTable) remove(id uuid.UUID) {
	t.mu.Lock()
	delete(t.queries, id)
	t.mu.Unlock()
}

// failAll completes every waiting query with err.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	queries := t.queries
	t.queries = make(map[uuid.UUID]*pendingQuery)
	t.mu.Unlock()

	for _, q := range queries {
		q.complete(nil, err)
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queries)
}
