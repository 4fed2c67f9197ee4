package stores

import (
	"context"
	"time"

	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/policy"
)

// RunStatus represents the outcome of a discovery run.
type RunStatus string

const (
	// RunStatusCompleted means every assembly was introspected.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPartial means at least one assembly or type could not be introspected.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed means the run itself failed.
	RunStatusFailed RunStatus = "failed"
)

// Run is the summary row of one recorded discovery run.
type Run struct {
	ID         string        `json:"id"`
	Manifest   string        `json:"manifest"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Assemblies int           `json:"assemblies"`
	Tests      int           `json:"tests"`
	Failed     int           `json:"failed"`
	Violations int           `json:"violations"`
	Error      *string       `json:"error,omitempty"`
	Metadata   string        `json:"metadata"` // JSON blob
	CreatedAt  time.Time     `json:"created_at"`
}

// AssemblyRecord is the stored settings of one assembly in a run.
type AssemblyRecord struct {
	RunID          string  `json:"run_id"`
	Assembly       string  `json:"assembly"`
	Workers        int     `json:"workers"`
	Scope          string  `json:"scope"`
	CanParallelize bool    `json:"can_parallelize"`
	Tests          int     `json:"tests"`
	Error          *string `json:"error,omitempty"`
}

// RunDiff lists the test IDs that differ between two runs.
type RunDiff struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Store defines the run history operations.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	RecordRun(ctx context.Context, manifest string, report *discovery.Report, lint *policy.Result) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	ListAssemblies(ctx context.Context, runID string) ([]*AssemblyRecord, error)
	ListTests(ctx context.Context, runID string) ([]discovery.TestCase, error)
	ListViolations(ctx context.Context, runID string) ([]policy.Violation, error)
	DiffRuns(ctx context.Context, from, to string) (*RunDiff, error)
}
