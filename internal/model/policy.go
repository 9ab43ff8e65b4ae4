package model

import "fmt"

type Policy struct {
	ID            int    `json:"id"`
	PolicyNumber  string `json:"policyNumber"`
	ClientName    string `json:"clientName"`
	InsuranceType string `json:"insuranceType"`
	Coverage      string `json:"coverage"`
	Premium       int    `json:"premium"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Status        string `json:"status"`
	UserID        int    `json:"userId"`
	IsLocalOnly   bool   `json:"isLocalOnly"`
	IsDemo        bool   `json:"isDemo,omitempty"`
}

type Client struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

const (
	InsuranceAuto     = "Auto"
	InsuranceHealth   = "Health"
	InsuranceProperty = "Property"
	InsuranceLife     = "Life"
)

const (
	CoverageFull     = "Full"
	CoverageStandard = "Standard"
	CoverageBasic    = "Basic"
)

const (
	StatusActive    = "Active"
	StatusCompleted = "Completed"
)

// Order matters: derived policies index these by id.
var (
	InsuranceTypes = []string{InsuranceAuto, InsuranceHealth, InsuranceProperty, InsuranceLife}
	Coverages      = []string{CoverageFull, CoverageStandard, CoverageBasic}
)

// PolicyNumber renders the display number for a policy id, e.g. 7 -> "POL-007".
func PolicyNumber(id int) string {
	return fmt.Sprintf("POL-%03d", id)
}
