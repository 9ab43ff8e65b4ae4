package model

import (
	"fmt"
	"strings"
)

// PolicyInput is the user-entered part of a policy. Zero values mean
// "not supplied".
type PolicyInput struct {
	ClientName    string `json:"clientName"`
	InsuranceType string `json:"insuranceType,omitempty"`
	Coverage      string `json:"coverage,omitempty"`
	Premium       int    `json:"premium,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	EndDate       string `json:"endDate,omitempty"`
	Status        string `json:"status,omitempty"`
}

// ValidationError reports the first rule a PolicyInput breaks.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (in *PolicyInput) Validate() error {
	if strings.TrimSpace(in.ClientName) == "" {
		return &ValidationError{Code: "INVALID_CLIENT_NAME", Message: "Client name is empty or blank"}
	}
	if in.InsuranceType != "" && !contains(InsuranceTypes, in.InsuranceType) {
		return &ValidationError{Code: "INVALID_INSURANCE_TYPE", Message: fmt.Sprintf("Unknown insurance type: %s", in.InsuranceType)}
	}
	if in.Coverage != "" && !contains(Coverages, in.Coverage) {
		return &ValidationError{Code: "INVALID_COVERAGE", Message: fmt.Sprintf("Unknown coverage: %s", in.Coverage)}
	}
	if in.Status != "" && in.Status != StatusActive && in.Status != StatusCompleted {
		return &ValidationError{Code: "INVALID_STATUS", Message: fmt.Sprintf("Unknown status: %s", in.Status)}
	}
	if in.Premium < 0 {
		return &ValidationError{Code: "INVALID_PREMIUM", Message: "Premium must be non-negative"}
	}

	start, startOK := ParseDate(in.StartDate)
	if in.StartDate != "" && !startOK {
		return &ValidationError{Code: "INVALID_START_DATE", Message: "Start date must be YYYY-MM-DD"}
	}
	end, endOK := ParseDate(in.EndDate)
	if in.EndDate != "" && !endOK {
		return &ValidationError{Code: "INVALID_END_DATE", Message: "End date must be YYYY-MM-DD"}
	}
	if startOK && endOK && end.Before(start) {
		return &ValidationError{Code: "INVALID_PERIOD", Message: "End date is before start date"}
	}

	return nil
}

// Apply builds the policy with the given id from the input. Fields the
// input leaves empty are taken from base.
func (in *PolicyInput) Apply(id int, base Policy) Policy {
	p := base
	p.ID = id
	p.PolicyNumber = PolicyNumber(id)
	if in.ClientName != "" {
		p.ClientName = in.ClientName
	}
	if in.InsuranceType != "" {
		p.InsuranceType = in.InsuranceType
	}
	if in.Coverage != "" {
		p.Coverage = in.Coverage
	}
	if in.Premium != 0 {
		p.Premium = in.Premium
	}
	if in.StartDate != "" {
		p.StartDate = in.StartDate
	}
	if in.EndDate != "" {
		p.EndDate = in.EndDate
	}
	if in.Status != "" {
		p.Status = in.Status
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
