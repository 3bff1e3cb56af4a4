package listctl

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type lead struct {
	ID     int64
	Name   string
	Status string
}

type serverError struct{ status int }

func (e *serverError) Error() string   { return "server error" }
func (e *serverError) Kind() ErrorKind { return KindServer }

// listCall is one List invocation held open until the test replies.
type listCall struct {
	q     Query
	reply chan listReply
}

type listReply struct {
	result PageResult[lead]
	err    error
}

// fakeRemote serves an in-memory dataset, or holds List calls open on
// calls when gated is set.
type fakeRemote struct {
	mu        sync.Mutex
	items     []lead
	queries   []Query
	failPages map[int]error
	createErr error
	deleteErr error
	deleted   []int64
	created   []lead
	updated   []int64

	gated      bool
	calls      chan *listCall
	deleteGate chan struct{}
	nextID     int64
}

func newFakeRemote(n int) *fakeRemote {
	f := &fakeRemote{
		failPages: make(map[int]error),
		calls:     make(chan *listCall, 16),
	}
	for i := 1; i <= n; i++ {
		status := "NEW"
		if i%3 == 0 {
			status = "NO_SHOW"
		}
		f.items = append(f.items, lead{ID: int64(i), Name: "lead-" + strconv.Itoa(i), Status: status})
	}
	f.nextID = int64(n) + 1
	return f
}

func (f *fakeRemote) List(ctx context.Context, q Query) (PageResult[lead], error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gated := f.gated
	f.mu.Unlock()

	if gated {
		call := &listCall{q: q, reply: make(chan listReply, 1)}
		f.calls <- call
		select {
		case r := <-call.reply:
			return r.result, r.err
		case <-ctx.Done():
			return PageResult[lead]{}, ctx.Err()
		}
	}
	return f.serve(q)
}

func (f *fakeRemote) serve(q Query) (PageResult[lead], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failPages[q.Page]; ok {
		return PageResult[lead]{}, err
	}

	var matched []lead
	for _, l := range f.items {
		if s := q.Filters["status"]; s != "" && l.Status != s {
			continue
		}
		if q.SearchTerm != "" && !strings.Contains(l.Name, q.SearchTerm) {
			continue
		}
		matched = append(matched, l)
	}

	start := (q.Page - 1) * q.PageSize
	end := start + q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	return PageResult[lead]{
		Items:      append([]lead(nil), matched[start:end]...),
		TotalCount: len(matched),
		Page:       q.Page,
	}, nil
}

func (f *fakeRemote) Create(ctx context.Context, item lead) (lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return lead{}, f.createErr
	}
	item.ID = f.nextID
	f.nextID++
	f.items = append(f.items, item)
	f.created = append(f.created, item)
	return item, nil
}

func (f *fakeRemote) Update(ctx context.Context, id int64, patch Patch) (lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, id)
	for i := range f.items {
		if f.items[i].ID == id {
			if status, ok := patch["status"].(string); ok {
				f.items[i].Status = status
			}
			return f.items[i], nil
		}
	}
	return lead{}, &serverError{status: 404}
}

func (f *fakeRemote) Delete(ctx context.Context, id int64) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return &serverError{status: 404}
}

func (f *fakeRemote) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeRemote) lastQuery() Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeRemote) setGated(gated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated = gated
}

// nextCall waits for the next gated List call.
func (f *fakeRemote) nextCall(t *testing.T) *listCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for List call")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestController(t *testing.T, remote *fakeRemote, pageSize int) *Controller[lead, int64] {
	t.Helper()

	cfg := DefaultConfig("leads")
	cfg.PageSize = pageSize
	cfg.Debounce = 30 * time.Millisecond

	ctl, err := New[lead, int64](remote, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(ctl.Close)
	return ctl
}
