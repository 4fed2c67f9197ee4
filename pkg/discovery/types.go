package discovery

import (
	"time"

	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/settings"
)

// TestCase is one discovered test method with the metadata resolved for it.
type TestCase struct {
	// ID is the stable element identity of the test method.
	ID          string `json:"id"`
	Assembly    string `json:"assembly"`
	Class       string `json:"class"`
	Method      string `json:"method"`
	DisplayName string `json:"display_name,omitempty"`

	// Categories holds method categories followed by class categories.
	Categories  []string `json:"categories,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	Description string   `json:"description,omitempty"`

	// TimeoutMs is zero when no timeout is declared.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	Ignored      bool   `json:"ignored,omitempty"`
	IgnoreReason string `json:"ignore_reason,omitempty"`

	// DeploymentItems lists method items followed by class items.
	DeploymentItems []markers.DeploymentItem `json:"deployment_items,omitempty"`
	Properties      map[string]string        `json:"properties,omitempty"`

	// Lifecycle is nil when no lifecycle method applies to the test.
	Lifecycle *Lifecycle `json:"lifecycle,omitempty"`
}

// Lifecycle lists the lifecycle methods that apply to a test class, each in
// run order. Initializers run base class first, cleanups derived class first.
type Lifecycle struct {
	ClassInitialize []string `json:"class_initialize,omitempty"`
	TestInitialize  []string `json:"test_initialize,omitempty"`
	TestCleanup     []string `json:"test_cleanup,omitempty"`
	ClassCleanup    []string `json:"class_cleanup,omitempty"`
}

func (l *Lifecycle) empty() bool {
	return len(l.ClassInitialize) == 0 && len(l.TestInitialize) == 0 &&
		len(l.TestCleanup) == 0 && len(l.ClassCleanup) == 0
}

// TypeFailure is a type whose hierarchy could not be introspected, typically
// because a base type lives in a module that is not loaded.
type TypeFailure struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// AssemblyReport is the discovery outcome of one assembly.
type AssemblyReport struct {
	Assembly string            `json:"assembly"`
	Settings settings.Settings `json:"settings"`
	Tests    []TestCase        `json:"tests"`

	// Error is set when the assembly could not be introspected. Such an
	// assembly contributes no tests and does not fail the run.
	Error string `json:"error,omitempty"`

	// Failures lists the types skipped within an otherwise readable assembly.
	Failures []TypeFailure `json:"failures,omitempty"`
}

// Report is the outcome of one discovery pass.
type Report struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
	Assemblies []AssemblyReport `json:"assemblies"`
}

// Tests returns every discovered test in manifest order.
func (r *Report) Tests() []TestCase {
	var out []TestCase
	for _, asm := range r.Assemblies {
		out = append(out, asm.Tests...)
	}
	return out
}

// Partial reports whether any assembly or type could not be introspected.
func (r *Report) Partial() bool {
	for _, asm := range r.Assemblies {
		if asm.Error != "" || len(asm.Failures) > 0 {
			return true
		}
	}
	return false
}

// Failed returns the assemblies that could not be introspected.
func (r *Report) Failed() []AssemblyReport {
	var out []AssemblyReport
	for _, asm := range r.Assemblies {
		if asm.Error != "" {
			out = append(out, asm)
		}
	}
	return out
}
