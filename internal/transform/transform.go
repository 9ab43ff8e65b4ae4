// Package transform maps raw backend records to policies and clients.
// Every derived field is a function of the record id, so the same input
// always yields the same output for a given day.
package transform

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"policy-console/internal/model"
)

const (
	basePremium    = 5000
	premiumPerID   = 1000
	policyTermDays = 365
)

func ToClient(u model.User) model.Client {
	phone := u.Phone
	if phone == "" {
		phone = fmt.Sprintf("+7 (999) %d-%d", 100+u.ID, 1000+u.ID)
	}
	return model.Client{
		ID:       u.ID,
		Name:     u.Name,
		Phone:    phone,
		Email:    u.Email,
		Username: u.Username,
	}
}

// PlaceholderUser stands in for a post owner missing from /users.
func PlaceholderUser(userID int) model.User {
	return model.User{ID: userID, Name: fmt.Sprintf("Client %d", userID)}
}

// ToPolicy builds a policy from a post and its owner. Posts written by this
// service carry a serialized PolicyInput in Body; its fields win over the
// id-derived ones.
func ToPolicy(p model.Post, owner model.User, today time.Time) model.Policy {
	policy := derive(p.ID, today)
	policy.ClientName = owner.Name
	policy.UserID = p.UserID

	if in, ok := decodeBody(p.Body); ok {
		policy = in.Apply(p.ID, policy)
	}
	return policy
}

// DemoPolicy is the synthetic policy with the given id used when the
// backend is unavailable.
func DemoPolicy(id int, today time.Time) model.Policy {
	p := derive(id, today)
	p.ClientName = fmt.Sprintf("Client %d", id)
	p.UserID = 1
	p.IsDemo = true
	return p
}

// DemoPolicies returns ids 1..n.
func DemoPolicies(n int, today time.Time) []model.Policy {
	out := make([]model.Policy, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, DemoPolicy(i, today))
	}
	return out
}

func DemoClients() []model.Client {
	return []model.Client{
		{ID: 1, Name: "Ivan Ivanov", Phone: "+7 (999) 123-45-67", Email: "ivan@mail.com", Username: "ivanov"},
		{ID: 2, Name: "Petr Petrov", Phone: "+7 (999) 234-56-78", Email: "petr@mail.com", Username: "petrov"},
		{ID: 3, Name: "Maria Sidorova", Phone: "+7 (999) 345-67-89", Email: "maria@mail.com", Username: "sidorova"},
	}
}

func derive(id int, today time.Time) model.Policy {
	day := model.Today(today)

	status := model.StatusActive
	if id%3 == 0 {
		status = model.StatusCompleted
	}

	return model.Policy{
		ID:            id,
		PolicyNumber:  model.PolicyNumber(id),
		InsuranceType: model.InsuranceTypes[mod(id, len(model.InsuranceTypes))],
		Coverage:      model.Coverages[mod(id, len(model.Coverages))],
		Premium:       basePremium + id*premiumPerID,
		StartDate:     model.FormatDate(day.AddDate(0, 0, -id)),
		EndDate:       model.FormatDate(day.AddDate(0, 0, policyTermDays-id)),
		Status:        status,
	}
}

func decodeBody(body string) (model.PolicyInput, bool) {
	var in model.PolicyInput
	if !strings.HasPrefix(strings.TrimSpace(body), "{") {
		return in, false
	}
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return in, false
	}
	return in, strings.TrimSpace(in.ClientName) != ""
}

// mod keeps enum lookups in range for negative ids.
func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
