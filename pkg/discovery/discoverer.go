// Package discovery enumerates the tests declared in a metadata snapshot by
// resolving framework markers on every type and method.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
	"github.com/tessera-run/tessera/pkg/settings"
	"github.com/tessera-run/tessera/pkg/telemetry"
)

// DefaultWorkers bounds the number of types inspected concurrently.
const DefaultWorkers = 8

// Source enumerates the elements of a snapshot.
type Source interface {
	Assemblies() []engine.Element
	Types(assembly string) ([]metadata.TypeInfo, error)
	// VisibleMethods returns declared and inherited methods, each named by
	// its declaring type.
	VisibleMethods(typeElement engine.Element) ([]engine.Element, error)
}

// SettingsExtractor reads assembly-level settings.
type SettingsExtractor interface {
	Extract(assembly engine.Element) (settings.Settings, error)
}

// Options configures a Discoverer.
type Options struct {
	// Workers bounds concurrent type inspection. Zero means DefaultWorkers.
	Workers int
	Logger  zerolog.Logger
}

// Discoverer finds test classes and test methods.
type Discoverer struct {
	source     Source
	resolver   engine.Resolving
	extractor  SettingsExtractor
	testClass  *engine.MarkerType
	testMethod *engine.MarkerType
	workers    int
	logger     zerolog.Logger
}

// New creates a discoverer. resolver is typically a cache.Memo wrapping an
// engine.Resolver over the same snapshot as source.
func New(source Source, resolver engine.Resolving, lookup settings.MarkerLookup, extractor SettingsExtractor, opts Options) (*Discoverer, error) {
	testClass, err := lookup.LookupMarker(markers.TestClassName + ", " + markers.FrameworkAssembly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve test class marker: %w", err)
	}
	testMethod, err := lookup.LookupMarker(markers.TestMethodName + ", " + markers.FrameworkAssembly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve test method marker: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Discoverer{
		source:     source,
		resolver:   resolver,
		extractor:  extractor,
		testClass:  testClass,
		testMethod: testMethod,
		workers:    workers,
		logger:     opts.Logger.With().Str("component", "discoverer").Logger(),
	}, nil
}

// Discover runs one discovery pass over every assembly of the source.
func (d *Discoverer) Discover(ctx context.Context, runID string) (*Report, error) {
	report := &Report{RunID: runID, StartedAt: time.Now().UTC()}

	for _, asm := range d.source.Assemblies() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ar, err := d.discoverAssembly(ctx, asm)
		if err != nil {
			return nil, err
		}
		report.Assemblies = append(report.Assemblies, ar)
	}

	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

// DiscoverAssembly runs discovery over a single assembly.
func (d *Discoverer) DiscoverAssembly(ctx context.Context, assembly string) (AssemblyReport, error) {
	return d.discoverAssembly(ctx, engine.AssemblyElement(assembly))
}

func (d *Discoverer) discoverAssembly(ctx context.Context, asm engine.Element) (AssemblyReport, error) {
	op := telemetry.StartOperation(ctx, "discovery.assembly", telemetry.AttrAssembly.String(asm.Assembly))
	report, err := d.inspectAssembly(op.Ctx, asm)
	op.End(err)
	if err != nil {
		return AssemblyReport{}, err
	}

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.SetTestsDiscovered(asm.Assembly, len(report.Tests))
	}
	return report, nil
}

func (d *Discoverer) inspectAssembly(ctx context.Context, asm engine.Element) (AssemblyReport, error) {
	report := AssemblyReport{Assembly: asm.Assembly}
	logger := d.logger.With().Str("assembly", asm.Assembly).Logger()

	types, err := d.source.Types(asm.Assembly)
	if err == nil {
		report.Settings, err = d.extractor.Extract(asm)
	}
	if err != nil {
		if engine.IsUnavailable(err) {
			logger.Warn().Err(err).Msg("Assembly cannot be introspected, skipping")
			report.Error = err.Error()
			return report, nil
		}
		return report, err
	}

	perType := make([][]TestCase, len(types))
	failures := make([]*TypeFailure, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, t := range types {
		if t.Abstract {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tests, err := d.inspectType(t.Element)
			if err != nil {
				if engine.IsUnavailable(err) {
					logger.Warn().Err(err).Str("type", t.Element.Type).Msg("Type cannot be introspected, skipping")
					failures[i] = &TypeFailure{Type: t.Element.Type, Error: err.Error()}
					return nil
				}
				return fmt.Errorf("failed to inspect %s: %w", t.Element, err)
			}
			perType[i] = tests
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for i, tests := range perType {
		report.Tests = append(report.Tests, tests...)
		if failures[i] != nil {
			report.Failures = append(report.Failures, *failures[i])
		}
	}

	logger.Debug().
		Int("types", len(types)).
		Int("tests", len(report.Tests)).
		Int("failed_types", len(report.Failures)).
		Str("settings", report.Settings.String()).
		Msg("Discovered assembly")

	return report, nil
}

// inspectType returns the tests of one type, or nil when it is not a test class.
func (d *Discoverer) inspectType(typeElem engine.Element) ([]TestCase, error) {
	marked, err := d.resolver.Resolve(typeElem, d.testClass, false)
	if err != nil {
		return nil, err
	}
	if marked.Len() == 0 {
		return nil, nil
	}

	class, err := d.resolver.Resolve(typeElem, nil, true)
	if err != nil {
		return nil, err
	}

	methods, err := d.source.VisibleMethods(typeElem)
	if err != nil {
		return nil, err
	}

	var (
		tests  []TestCase
		levels lifecycleLevels
	)
	for _, m := range methods {
		method, err := d.resolver.Resolve(m, nil, true)
		if err != nil {
			return nil, err
		}
		levels.add(typeElem, m, method)

		tm, ok, err := d.testMethodOf(m)
		if err != nil {
			return nil, err
		}
		if ok {
			tests = append(tests, buildTestCase(typeElem, m, tm, method, class))
		}
	}

	if lifecycle := levels.build(); lifecycle != nil {
		for i := range tests {
			tests[i].Lifecycle = lifecycle
		}
	}
	return tests, nil
}

func (d *Discoverer) testMethodOf(m engine.Element) (*markers.TestMethod, bool, error) {
	marked, err := d.resolver.Resolve(m, d.testMethod, true)
	if err != nil {
		return nil, false, err
	}
	tm, ok := engine.First[*markers.TestMethod](marked)
	return tm, ok, nil
}

// buildTestCase describes method m as a test of class. m may be declared on a
// base type of class.
func buildTestCase(class, m engine.Element, tm *markers.TestMethod, method, classMarkers engine.Result) TestCase {
	tc := TestCase{
		ID:          engine.MethodElement(class.Assembly, class.Type, m.Method).String(),
		Assembly:    class.Assembly,
		Class:       class.Type,
		Method:      m.Method,
		DisplayName: tm.DisplayName,
	}

	for _, r := range []engine.Result{method, classMarkers} {
		for _, c := range engine.All[*markers.TestCategory](r) {
			tc.Categories = append(tc.Categories, c.Categories...)
		}
		for _, item := range engine.All[*markers.DeploymentItem](r) {
			tc.DeploymentItems = append(tc.DeploymentItems, *item)
		}
	}

	if o, ok := firstOf[*markers.Owner](method, classMarkers); ok {
		tc.Owner = o.Owner
	}
	if p, ok := firstOf[*markers.Priority](method, classMarkers); ok {
		priority := p.Priority
		tc.Priority = &priority
	}
	if desc, ok := firstOf[*markers.Description](method, classMarkers); ok {
		tc.Description = desc.Description
	}
	if t, ok := engine.First[*markers.Timeout](method); ok {
		tc.TimeoutMs = t.Timeout
	}
	if ig, ok := firstOf[*markers.Ignore](method, classMarkers); ok {
		tc.Ignored = true
		tc.IgnoreReason = ig.Message
	}

	for _, p := range engine.All[*markers.TestProperty](method) {
		if tc.Properties == nil {
			tc.Properties = make(map[string]string)
		}
		if _, exists := tc.Properties[p.Name]; !exists {
			tc.Properties[p.Name] = p.Value
		}
	}

	return tc
}

// lifecycleLevels collects lifecycle methods per declaring type, most-derived
// type first.
type lifecycleLevels []*lifecycleLevel

type lifecycleLevel struct {
	declaring engine.Element
	Lifecycle
}

// add records the lifecycle markers resolved for m, a visible method of class.
// Class-level methods declared on a base type apply only when they ask to run
// before each derived class.
func (ls *lifecycleLevels) add(class, m engine.Element, resolved engine.Result) {
	declaring := engine.TypeElement(m.Assembly, m.Type)
	own := declaring == class
	id := m.String()

	var level *lifecycleLevel
	for _, l := range *ls {
		if l.declaring == declaring {
			level = l
		}
	}
	if level == nil {
		level = &lifecycleLevel{declaring: declaring}
		*ls = append(*ls, level)
	}

	if ci, ok := engine.First[*markers.ClassInitialize](resolved); ok && (own || ci.Inheritance == markers.BeforeEachDerivedClass) {
		level.ClassInitialize = append(level.ClassInitialize, id)
	}
	if cc, ok := engine.First[*markers.ClassCleanup](resolved); ok && (own || cc.Inheritance == markers.BeforeEachDerivedClass) {
		level.ClassCleanup = append(level.ClassCleanup, id)
	}
	if _, ok := engine.First[*markers.TestInitialize](resolved); ok {
		level.TestInitialize = append(level.TestInitialize, id)
	}
	if _, ok := engine.First[*markers.TestCleanup](resolved); ok {
		level.TestCleanup = append(level.TestCleanup, id)
	}
}

// build orders the collected methods for execution, or returns nil.
func (ls lifecycleLevels) build() *Lifecycle {
	out := &Lifecycle{}
	for i := len(ls) - 1; i >= 0; i-- {
		out.ClassInitialize = append(out.ClassInitialize, ls[i].ClassInitialize...)
		out.TestInitialize = append(out.TestInitialize, ls[i].TestInitialize...)
	}
	for _, l := range ls {
		out.TestCleanup = append(out.TestCleanup, l.TestCleanup...)
		out.ClassCleanup = append(out.ClassCleanup, l.ClassCleanup...)
	}
	if out.empty() {
		return nil
	}
	return out
}

// firstOf returns the first T found in the results, in order.
func firstOf[T any](results ...engine.Result) (T, bool) {
	for _, r := range results {
		if v, ok := engine.First[T](r); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
