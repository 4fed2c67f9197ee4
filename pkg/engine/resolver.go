package engine

import (
	"time"

	"github.com/rs/zerolog"
)

// maxPolicyDepth bounds the self-referential usage policy lookup: resolving a
// marker type's usage policy materializes the usage meta-marker, whose own
// policy is looked up one level deeper.
const maxPolicyDepth = 3

// Resolver computes the de-duplicated, inheritance-aware set of markers that
// apply to an element. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	provider     Provider
	catalog      Catalog
	materializer *Materializer
	logger       zerolog.Logger
	observer     Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for skipped records and policy fallbacks.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger.With().Str("component", "attribute-resolver").Logger()
	}
}

// WithObserver sets the observer receiving resolution measurements.
func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// NewResolver creates a resolver reading elements from provider and marker
// types from catalog.
func NewResolver(provider Provider, catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		provider:     provider,
		catalog:      catalog,
		materializer: NewMaterializer(catalog),
		logger:       zerolog.Nop(),
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the markers of kind target (or of every kind when target is
// nil) that apply to e. With inherit, markers declared on e's ancestors are
// merged in: the most-derived application of a non-repeatable marker type wins
// and repeatable markers accumulate in discovery order.
//
// An absent element yields an empty result. Only ElementUnavailable errors and
// non-recoverable constructor or setter failures are returned.
func (r *Resolver) Resolve(e Element, target *MarkerType, inherit bool) (Result, error) {
	if e.IsZero() {
		return Result{}, nil
	}

	start := time.Now()
	result, levels, err := r.resolve(r.provider, e, target, inherit, 0)
	if err != nil {
		return nil, err
	}
	r.observer.ObserveResolution(e.Kind, levels, len(result), time.Since(start))
	return result, nil
}

// ResolveAll returns the markers of every kind applying to e.
func (r *Resolver) ResolveAll(e Element, inherit bool) (Result, error) {
	return r.Resolve(e, nil, inherit)
}

// AllowMultiple reports the cardinality policy of a marker type.
func (r *Resolver) AllowMultiple(t *MarkerType) bool {
	return r.allowMultiple(t, 0)
}

func (r *Resolver) resolve(p Provider, e Element, target *MarkerType, inherit bool, depth int) (Result, int, error) {
	levels, err := Ancestry(p, e, inherit)
	if err != nil {
		return nil, 0, err
	}

	acc := newAccumulator()
	for _, level := range levels {
		records, err := p.RawAttributes(level)
		if err != nil {
			return nil, 0, err
		}
		if len(records) == 0 {
			continue
		}

		mode, err := p.ModuleMode(level)
		if err != nil {
			return nil, 0, err
		}

		for _, rec := range records {
			if target != nil && !r.matches(rec.MarkerType, target) {
				continue
			}

			inst, err := r.materializer.Materialize(rec, level, mode)
			if err != nil {
				if IsConstructionFailed(err) {
					r.logger.Debug().
						Err(err).
						Str("element", level.String()).
						Str("marker", rec.MarkerType).
						Str("code", CodeOf(err)).
						Msg("Skipping marker that could not be materialized")
					r.observer.ObserveSkipped(rec.MarkerType, CodeOf(err))
					continue
				}
				return nil, 0, err
			}

			acc.add(inst, r.allowMultiple(inst.Type, depth+1))
		}
	}

	return acc.result(), len(levels), nil
}

// matches reports whether the record's marker type equals target or derives
// from it. Unresolvable marker types only match by name.
func (r *Resolver) matches(qualified string, target *MarkerType) bool {
	name, assembly := SplitQualifiedName(qualified)
	if name == target.Name && (assembly == "" || assembly == target.Assembly) {
		return true
	}

	current, err := r.catalog.LookupMarker(qualified)
	if err != nil {
		return false
	}
	seen := make(map[string]bool)
	for current != nil && !seen[current.QualifiedName()] {
		if current.QualifiedName() == target.QualifiedName() {
			return true
		}
		seen[current.QualifiedName()] = true
		if current.Base == "" {
			return false
		}
		current, err = r.catalog.LookupMarker(current.Base)
		if err != nil {
			return false
		}
	}
	return false
}

// allowMultiple resolves the usage meta-marker applied to t through the same
// engine, using the catalog as the metadata provider. Any failure, or hitting
// the depth bound, defaults to allowing multiple applications.
func (r *Resolver) allowMultiple(t *MarkerType, depth int) bool {
	if depth >= maxPolicyDepth {
		return true
	}

	usageType, err := r.catalog.LookupMarker(UsageTypeName)
	if err != nil {
		r.policyDefault(t, NewPolicyError("usage meta-marker unresolved", err))
		return true
	}

	usages, _, err := r.resolve(r.catalog, t.Element(), usageType, true, depth)
	if err != nil {
		r.policyDefault(t, NewPolicyError("usage policy lookup failed", err))
		return true
	}

	usage, ok := First[*Usage](usages)
	if !ok {
		return true
	}
	return usage.AllowMultiple
}

func (r *Resolver) policyDefault(t *MarkerType, err error) {
	r.logger.Debug().Err(err).Str("marker", t.QualifiedName()).Msg("Defaulting usage policy to allow multiple")
	r.observer.ObservePolicyDefault(t.QualifiedName())
}

// accumulator partitions materialized markers by cardinality.
type accumulator struct {
	repeatable []Instance
	unique     map[string]Instance
	order      []string
}

func newAccumulator() *accumulator {
	return &accumulator{unique: make(map[string]Instance)}
}

func (a *accumulator) add(inst Instance, allowMultiple bool) {
	if allowMultiple {
		a.repeatable = append(a.repeatable, inst)
		return
	}
	key := inst.Type.Name
	if _, exists := a.unique[key]; exists {
		return
	}
	a.unique[key] = inst
	a.order = append(a.order, key)
}

func (a *accumulator) result() Result {
	out := make(Result, 0, len(a.repeatable)+len(a.order))
	out = append(out, a.repeatable...)
	for _, key := range a.order {
		out = append(out, a.unique[key])
	}
	return out
}
