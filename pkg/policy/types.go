package policy

import (
	"time"

	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/settings"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that fail a lint run.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of severity s fail a lint run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a lint rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the policy code. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata, such as the source file.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation represents a single policy violation by one test.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// TestID identifies the offending test.
	TestID string `json:"test_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of linting a discovery report.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations in test order.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies whose evaluation failed.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document a policy sees as input.
type Input struct {
	Test     *discovery.TestCase `json:"test"`
	Settings settings.Settings   `json:"settings"`
	Context  *Context            `json:"context"`
}

// Context provides information about the discovery run being linted.
type Context struct {
	RunID     string    `json:"run_id,omitempty"`
	Assembly  string    `json:"assembly"`
	Timestamp time.Time `json:"timestamp"`
}
