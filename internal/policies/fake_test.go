package policies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"policy-console/internal/backend"
	"policy-console/internal/model"
	"policy-console/internal/overlay"
	"policy-console/internal/retry"
)

var errDown = errors.New("connection refused")

// fakeBackend mimics the mock API. Created posts get nextID; posts with
// ids up to storeLimit are kept, like a backend that stores some writes.
type fakeBackend struct {
	mu         sync.Mutex
	posts      map[int]model.Post
	users      []model.User
	nextID     int
	storeLimit int

	failPosts  int
	failUsers  int
	failWrites int

	calls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{posts: make(map[int]model.Post), nextID: 101, storeLimit: 100}
}

func (f *fakeBackend) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeBackend) ListPosts(context.Context) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GET /posts")
	if f.failPosts > 0 {
		f.failPosts--
		return nil, errDown
	}
	out := make([]model.Post, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) ListUsers(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GET /users")
	if f.failUsers > 0 {
		f.failUsers--
		return nil, errDown
	}
	return append([]model.User(nil), f.users...), nil
}

func (f *fakeBackend) CreatePost(_ context.Context, p model.Post) (model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("POST /posts")
	if f.failWrites > 0 {
		f.failWrites--
		return model.Post{}, errDown
	}
	p.ID = f.nextID
	if p.ID <= f.storeLimit {
		f.posts[p.ID] = p
		f.nextID++
	}
	return p, nil
}

func (f *fakeBackend) UpdatePost(_ context.Context, id int, p model.Post) (model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("PUT /posts/%d", id))
	if f.failWrites > 0 {
		f.failWrites--
		return model.Post{}, errDown
	}
	if _, ok := f.posts[id]; ok {
		f.posts[id] = p
	}
	return p, nil
}

func (f *fakeBackend) DeletePost(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("DELETE /posts/%d", id))
	if f.failWrites > 0 {
		f.failWrites--
		return errDown
	}
	if _, ok := f.posts[id]; !ok {
		return &backend.StatusError{Method: "DELETE", Path: fmt.Sprintf("/posts/%d", id), Code: 404}
	}
	delete(f.posts, id)
	return nil
}

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(b Backend, mode Mode) (*Service, *overlay.Store) {
	store := overlay.New()
	svc := New(b, store, Options{
		Mode:         mode,
		BackendMaxID: 100,
		PageSize:     10,
		Retry:        retry.Options{MaxRetries: 2, InitialDelay: time.Second, Sleep: noSleep},
		Now:          func() time.Time { return fixedNow },
	})
	return svc, store
}
