// Package console is what the admin panel and profile page talk to: cached
// reads over the policy service, and mutations that keep the cache in step.
package console

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"policy-console/internal/backend"
	"policy-console/internal/config"
	"policy-console/internal/model"
	"policy-console/internal/overlay"
	"policy-console/internal/policies"
	"policy-console/internal/query"
	"policy-console/internal/retry"
)

func PoliciesKey() query.Key          { return query.Key{"policies"} }
func ClientsKey() query.Key           { return query.Key{"clients"} }
func PolicyKey(id int) query.Key      { return query.Key{"policy", id} }
func ProfileKey(userID int) query.Key { return query.Key{"profile", userID} }

type StaleTimes struct {
	Policies time.Duration
	Clients  time.Duration
	Profile  time.Duration
}

// Session owns the overlay store and the query cache for one console
// session. Both are dropped with it.
type Session struct {
	svc   *policies.Service
	cache *query.Cache
	stale StaleTimes
}

func NewSession(svc *policies.Service, cache *query.Cache, stale StaleTimes) *Session {
	return &Session{svc: svc, cache: cache, stale: stale}
}

// Open wires a session against the backend named in cfg.
func Open(cfg *config.Config) (*Session, error) {
	mode, err := policies.ParseMode(cfg.Service.Mode)
	if err != nil {
		return nil, err
	}

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	svc := policies.New(client, overlay.New(), policies.Options{
		Mode:         mode,
		BackendMaxID: cfg.Backend.MaxID,
		PageSize:     cfg.Service.PageSize,
		Retry: retry.Options{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
		},
	})

	return NewSession(svc, query.New(), StaleTimes{
		Policies: cfg.Cache.PoliciesStaleTime,
		Clients:  cfg.Cache.ClientsStaleTime,
		Profile:  cfg.Cache.ProfileStaleTime,
	}), nil
}

func (s *Session) Service() *policies.Service { return s.svc }
func (s *Session) Cache() *query.Cache        { return s.cache }

func (s *Session) Policies(ctx context.Context) ([]model.Policy, error) {
	return query.Fetch(ctx, s.cache, PoliciesKey(), s.stale.Policies, s.svc.ListPolicies)
}

func (s *Session) Clients(ctx context.Context) ([]model.Client, error) {
	return query.Fetch(ctx, s.cache, ClientsKey(), s.stale.Clients, s.svc.ListClients)
}

// Policy reads one policy out of the cached list.
func (s *Session) Policy(ctx context.Context, id int) (model.Policy, error) {
	return query.Fetch(ctx, s.cache, PolicyKey(id), s.stale.Policies, func(ctx context.Context) (model.Policy, error) {
		all, err := s.Policies(ctx)
		if err != nil {
			return model.Policy{}, err
		}
		for _, p := range all {
			if p.ID == id {
				return p, nil
			}
		}
		return model.Policy{}, fmt.Errorf("%w: %d", policies.ErrNotFound, id)
	})
}

// Profile returns the client with userID, or the first client when there is
// no such id.
func (s *Session) Profile(ctx context.Context, userID int) (model.Client, error) {
	return query.Fetch(ctx, s.cache, ProfileKey(userID), s.stale.Profile, func(ctx context.Context) (model.Client, error) {
		clients, err := s.Clients(ctx)
		if err != nil {
			return model.Client{}, err
		}
		for _, c := range clients {
			if c.ID == userID {
				return c, nil
			}
		}
		if len(clients) == 0 {
			return model.Client{}, fmt.Errorf("no clients available")
		}
		return clients[0], nil
	})
}

// Prefetch warms the policies and clients queries concurrently.
func (s *Session) Prefetch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Policies(gctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Clients(gctx)
		return err
	})
	return g.Wait()
}
