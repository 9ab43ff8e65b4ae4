// Package policies reads and writes insurance policies against the remote
// mock backend, keeping ids the backend cannot store in a local overlay.
package policies

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"policy-console/internal/backend"
	"policy-console/internal/logging"
	"policy-console/internal/model"
	"policy-console/internal/overlay"
	"policy-console/internal/retry"
	"policy-console/internal/transform"
)

// Mode selects how backend failures reach the caller. It is fixed for the
// life of a Service.
type Mode int

const (
	// Strict returns FailureError values.
	Strict Mode = iota
	// Fallback logs failures and substitutes demo or local data.
	Fallback
)

func (m Mode) String() string {
	if m == Fallback {
		return "fallback"
	}
	return "strict"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "strict":
		return Strict, nil
	case "fallback":
		return Fallback, nil
	}
	return Strict, fmt.Errorf("unknown mode %q", s)
}

const (
	DefaultBackendMaxID = 100
	DemoPolicyCount     = 20
	// ownerUserID is the backend user new policies are filed under.
	ownerUserID = 1
)

// Backend is the subset of the remote API the service needs.
type Backend interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	UpdatePost(ctx context.Context, id int, p model.Post) (model.Post, error)
	DeletePost(ctx context.Context, id int) error
	ListUsers(ctx context.Context) ([]model.User, error)
}

type Options struct {
	Mode Mode
	// BackendMaxID is the largest id the backend stores; larger ids are
	// overlay-only.
	BackendMaxID int
	// PageSize caps the backend-derived part of ListPolicies. 0 means no cap.
	// Policies created through the service are never cut by it.
	PageSize int
	Retry    retry.Options
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Mode:         Strict,
		BackendMaxID: DefaultBackendMaxID,
		PageSize:     10,
		Retry:        retry.DefaultOptions(),
	}
}

type Service struct {
	backend Backend
	store   *overlay.Store
	opts    Options

	mu sync.Mutex
	// created holds in-range ids created through this service.
	created map[int]struct{}
}

func New(b Backend, store *overlay.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{backend: b, store: store, opts: opts, created: make(map[int]struct{})}
}

func (s *Service) Mode() Mode {
	return s.opts.Mode
}

// IsLocalOnly reports whether id lies beyond what the backend can store.
func (s *Service) IsLocalOnly(id int) bool {
	return id > s.opts.BackendMaxID
}

func (s *Service) retryOpts(op string) retry.Options {
	o := s.opts.Retry
	o.Op = op
	return o
}

// ListPolicies fetches posts and users concurrently, transforms the posts
// and appends the overlay entries. Either fetch failing fails the call.
func (s *Service) ListPolicies(ctx context.Context) ([]model.Policy, error) {
	var posts []model.Post
	var users []model.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = retry.Do(gctx, s.retryOpts("list posts"), s.backend.ListPosts)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = retry.Do(gctx, s.retryOpts("list users"), s.backend.ListUsers)
		return err
	})

	today := s.opts.Now()
	if err := g.Wait(); err != nil {
		if s.opts.Mode == Strict {
			return nil, fetchFailure("list policies", err)
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Backend unavailable, serving demo policies")
		return s.withOverlay(transform.DemoPolicies(DemoPolicyCount, today)), nil
	}

	byID := make(map[int]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]model.Policy, 0, len(posts))
	for _, p := range posts {
		owner, ok := byID[p.UserID]
		if !ok {
			owner = transform.PlaceholderUser(p.UserID)
		}
		out = append(out, transform.ToPolicy(p, owner, today))
	}
	return s.withOverlay(s.page(out)), nil
}

// GetPolicy looks id up in ListPolicies.
func (s *Service) GetPolicy(ctx context.Context, id int) (model.Policy, error) {
	all, err := s.ListPolicies(ctx)
	if err != nil {
		return model.Policy{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Policy{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

func (s *Service) ListClients(ctx context.Context) ([]model.Client, error) {
	users, err := retry.Do(ctx, s.retryOpts("list users"), s.backend.ListUsers)
	if err != nil {
		if s.opts.Mode == Strict {
			return nil, fetchFailure("list clients", err)
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Backend unavailable, serving demo clients")
		return transform.DemoClients(), nil
	}

	out := make([]model.Client, 0, len(users))
	for _, u := range users {
		out = append(out, transform.ToClient(u))
	}
	return out, nil
}

// CreatePolicy posts the input and builds the policy around the id the
// backend assigns. Ids beyond BackendMaxID are also kept in the overlay.
func (s *Service) CreatePolicy(ctx context.Context, in model.PolicyInput) (model.Policy, error) {
	post, err := encodePost("Insurance Policy for ", in)
	if err != nil {
		return model.Policy{}, writeFailure("create policy", err)
	}

	created, err := retry.Do(ctx, s.retryOpts("create post"), func(ctx context.Context) (model.Post, error) {
		return s.backend.CreatePost(ctx, post)
	})
	if err != nil {
		if s.opts.Mode == Strict {
			return model.Policy{}, writeFailure("create policy", err)
		}
		id := s.store.NextID(s.opts.BackendMaxID)
		logging.Ctx(ctx).Warn().Err(err).Int("policy_id", id).Msg("Backend unavailable, keeping policy locally")
		created = model.Post{ID: id}
	}

	id := created.ID
	if s.IsLocalOnly(id) {
		// jsonplaceholder assigns the same id to every create.
		if _, taken := s.store.Get(id); taken {
			id = s.store.NextID(s.opts.BackendMaxID)
		}
	}

	p := newPolicy(id, in)
	p.Status = model.StatusActive
	if s.IsLocalOnly(p.ID) {
		p.IsLocalOnly = true
		s.store.Upsert(p)
	} else {
		s.mu.Lock()
		s.created[p.ID] = struct{}{}
		s.mu.Unlock()
	}

	logging.Ctx(ctx).Info().Int("policy_id", p.ID).Bool("local_only", p.IsLocalOnly).Msg("Policy created")
	return p, nil
}

// UpdatePolicy writes in-range ids to the backend. Overlay ids are updated
// in place without any backend call.
func (s *Service) UpdatePolicy(ctx context.Context, id int, in model.PolicyInput) (model.Policy, error) {
	if s.IsLocalOnly(id) {
		existing, ok := s.store.Get(id)
		if !ok {
			logging.Ctx(ctx).Debug().Int("policy_id", id).Msg("Update of unknown local policy")
			return newPolicy(id, in), nil
		}
		p := in.Apply(id, existing)
		if in.Status == "" {
			p.Status = model.StatusActive
		}
		s.store.Upsert(p)
		return p, nil
	}

	post, err := encodePost("Updated Insurance Policy for ", in)
	if err != nil {
		return model.Policy{}, writeFailure("update policy", err)
	}
	post.ID = id

	_, err = retry.Do(ctx, s.retryOpts("update post"), func(ctx context.Context) (model.Post, error) {
		return s.backend.UpdatePost(ctx, id, post)
	})
	if err != nil {
		if s.opts.Mode == Strict {
			return model.Policy{}, writeFailure("update policy", err)
		}
		logging.Ctx(ctx).Warn().Err(err).Int("policy_id", id).Msg("Backend unavailable, update not persisted")
	}
	return newPolicy(id, in), nil
}

// DeletePolicy removes the policy and returns id. Deleting an id that is
// already gone succeeds.
func (s *Service) DeletePolicy(ctx context.Context, id int) (int, error) {
	if s.IsLocalOnly(id) {
		s.store.Remove(id)
		return id, nil
	}

	_, err := retry.Do(ctx, s.retryOpts("delete post"), func(ctx context.Context) (struct{}, error) {
		err := s.backend.DeletePost(ctx, id)
		if backend.IsNotFound(err) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		if s.opts.Mode == Strict {
			return 0, writeFailure("delete policy", err)
		}
		logging.Ctx(ctx).Warn().Err(err).Int("policy_id", id).Msg("Backend unavailable, delete not persisted")
		return id, nil
	}

	s.mu.Lock()
	delete(s.created, id)
	s.mu.Unlock()
	return id, nil
}

// page caps ps at PageSize, then re-adds the cut policies this service
// created so a create is always visible in the next list.
func (s *Service) page(ps []model.Policy) []model.Policy {
	if s.opts.PageSize <= 0 || len(ps) <= s.opts.PageSize {
		return ps
	}
	out := ps[:s.opts.PageSize:s.opts.PageSize]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps[s.opts.PageSize:] {
		if _, ok := s.created[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// withOverlay appends every overlay entry; overlay entries are never cut by
// the page cap.
func (s *Service) withOverlay(ps []model.Policy) []model.Policy {
	return append(ps, s.store.All()...)
}

func newPolicy(id int, in model.PolicyInput) model.Policy {
	return in.Apply(id, model.Policy{UserID: ownerUserID})
}

func encodePost(titlePrefix string, in model.PolicyInput) (model.Post, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return model.Post{}, err
	}
	return model.Post{
		Title:  titlePrefix + in.ClientName,
		Body:   string(body),
		UserID: ownerUserID,
	}, nil
}
