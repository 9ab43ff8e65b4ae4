package console

import (
	"context"

	"policy-console/internal/model"
)

func (s *Session) CreatePolicy(ctx context.Context, in model.PolicyInput) (model.Policy, error) {
	p, err := s.svc.CreatePolicy(ctx, in)
	if err != nil {
		return model.Policy{}, err
	}
	s.syncList(func(list []model.Policy) []model.Policy {
		return append(list, p)
	})
	s.cache.SetData(PolicyKey(p.ID), p)
	return p, nil
}

func (s *Session) UpdatePolicy(ctx context.Context, id int, in model.PolicyInput) (model.Policy, error) {
	p, err := s.svc.UpdatePolicy(ctx, id, in)
	if err != nil {
		return model.Policy{}, err
	}
	s.syncList(func(list []model.Policy) []model.Policy {
		for i := range list {
			if list[i].ID == id {
				list[i] = p
			}
		}
		return list
	})
	s.cache.SetData(PolicyKey(id), p)
	return p, nil
}

func (s *Session) DeletePolicy(ctx context.Context, id int) (int, error) {
	deleted, err := s.svc.DeletePolicy(ctx, id)
	if err != nil {
		return 0, err
	}
	s.syncList(func(list []model.Policy) []model.Policy {
		out := list[:0]
		for _, p := range list {
			if p.ID != deleted {
				out = append(out, p)
			}
		}
		return out
	})
	s.cache.Remove(PolicyKey(deleted))
	return deleted, nil
}

// syncList applies fn to a copy of the cached policy list. With nothing
// cached the list query is invalidated instead.
func (s *Session) syncList(fn func([]model.Policy) []model.Policy) {
	ok := s.cache.Update(PoliciesKey(), func(old interface{}) interface{} {
		list, _ := old.([]model.Policy)
		return fn(append([]model.Policy(nil), list...))
	})
	if !ok {
		s.cache.Invalidate(PoliciesKey())
	}
}
