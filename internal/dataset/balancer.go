package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"
)

// Removal identifies one sample selected for deletion.
type Removal struct {
	Label  string `json:"label"`
	Sample string `json:"sample"`
}

// Plan is the set of removals that brings every class down to Target.
//
// Which samples are selected is unspecified: the plan only guarantees the
// per-class counts. Removals are grouped by label in lexical order.
type Plan struct {
	Target   int            `json:"target"`
	Counts   map[string]int `json:"counts"`
	Removals []Removal      `json:"removals"`
}

// PlanOptions tunes plan construction.
type PlanOptions struct {
	// MaxPerClass caps the target when > 0, so classes are trimmed to at most
	// this many samples even if the smallest class is larger.
	MaxPerClass int

	// Rand selects which samples are removed. Nil uses the global source.
	Rand *rand.Rand
}

// NewPlan computes the removals needed to balance inv.
func NewPlan(inv Inventory, opts PlanOptions) (*Plan, error) {
	target, ok := inv.Min()
	if !ok {
		return nil, ErrEmptyInventory
	}
	if opts.MaxPerClass > 0 && opts.MaxPerClass < target {
		target = opts.MaxPerClass
	}

	plan := &Plan{
		Target: target,
		Counts: inv.Counts(),
	}

	for _, label := range inv.Labels() {
		samples := inv[label]
		excess := len(samples) - target
		if excess <= 0 {
			continue
		}

		picked := make([]string, len(samples))
		copy(picked, samples)
		shuffle := rand.Shuffle
		if opts.Rand != nil {
			shuffle = opts.Rand.Shuffle
		}
		shuffle(len(picked), func(i, j int) {
			picked[i], picked[j] = picked[j], picked[i]
		})

		for _, sample := range picked[:excess] {
			plan.Removals = append(plan.Removals, Removal{Label: label, Sample: sample})
		}
	}

	return plan, nil
}

// Empty reports whether the plan removes nothing.
func (p *Plan) Empty() bool {
	return len(p.Removals) == 0
}

// RemovalsFor returns how many samples the plan removes from label.
func (p *Plan) RemovalsFor(label string) int {
	n := 0
	for _, r := range p.Removals {
		if r.Label == label {
			n++
		}
	}
	return n
}

// Report describes the outcome of applying a Plan.
type Report struct {
	Target  int            `json:"target"`
	Before  map[string]int `json:"before"`
	After   map[string]int `json:"after"`
	Removed []Removal      `json:"removed"`
}

// Balanced reports whether every class ended at the target count.
func (r *Report) Balanced() bool {
	for _, n := range r.After {
		if n != r.Target {
			return false
		}
	}
	return true
}

// Config holds the dependencies of a Balancer.
type Config struct {
	Store  SampleStore
	Logger zerolog.Logger

	// OnRemove is called for each sample immediately before it is removed.
	// An error vetoes the removal and stops Apply.
	OnRemove func(Removal) error
}

// Balancer equalizes class sizes in a SampleStore.
type Balancer struct {
	store    SampleStore
	log      zerolog.Logger
	onRemove func(Removal) error
}

// NewBalancer creates a Balancer over cfg.Store.
func NewBalancer(cfg Config) *Balancer {
	return &Balancer{
		store:    cfg.Store,
		log:      cfg.Logger,
		onRemove: cfg.OnRemove,
	}
}

// Plan loads the current inventory and computes a plan for it.
func (b *Balancer) Plan(ctx context.Context, opts PlanOptions) (*Plan, error) {
	inv, err := b.store.Inventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return NewPlan(inv, opts)
}

// Apply performs the removals in plan. It stops at the first failed removal
// or context cancellation and returns a *PartialBalanceError; the returned
// report still describes the removals that did happen.
func (b *Balancer) Apply(ctx context.Context, plan *Plan) (*Report, error) {
	report := &Report{
		Target: plan.Target,
		Before: make(map[string]int, len(plan.Counts)),
		After:  make(map[string]int, len(plan.Counts)),
	}
	for label, n := range plan.Counts {
		report.Before[label] = n
		report.After[label] = n
	}

	pending := make(map[string]int, len(plan.Counts))
	for _, r := range plan.Removals {
		pending[r.Label]++
	}

	for _, r := range plan.Removals {
		if err := ctx.Err(); err != nil {
			return report, b.partial(plan, pending, r, len(report.Removed), err)
		}

		if b.onRemove != nil {
			if err := b.onRemove(r); err != nil {
				b.log.Error().Err(err).Str("label", r.Label).Str("sample", r.Sample).Msg("removal vetoed")
				return report, b.partial(plan, pending, r, len(report.Removed), err)
			}
		}
		b.log.Info().Str("label", r.Label).Str("sample", r.Sample).Msg("removing sample")

		if err := b.store.Remove(ctx, r.Label, r.Sample); err != nil {
			b.log.Error().Err(err).Str("label", r.Label).Str("sample", r.Sample).Msg("sample removal failed")
			return report, b.partial(plan, pending, r, len(report.Removed), err)
		}

		report.Removed = append(report.Removed, r)
		report.After[r.Label]--
		pending[r.Label]--
	}

	b.log.Info().Int("target", plan.Target).Int("removed", len(report.Removed)).
		Int("classes", len(plan.Counts)).Msg("label classes balanced")
	return report, nil
}

// Run loads the inventory, plans, and applies the plan.
func (b *Balancer) Run(ctx context.Context, opts PlanOptions) (*Plan, *Report, error) {
	plan, err := b.Plan(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	report, err := b.Apply(ctx, plan)
	return plan, report, err
}

func (b *Balancer) partial(plan *Plan, pending map[string]int, failed Removal, removed int, cause error) *PartialBalanceError {
	perr := &PartialBalanceError{
		Target:  plan.Target,
		Label:   failed.Label,
		Sample:  failed.Sample,
		Removed: removed,
		Err:     cause,
	}
	for label := range plan.Counts {
		if pending[label] > 0 {
			perr.Unbalanced = append(perr.Unbalanced, label)
		} else {
			perr.Balanced = append(perr.Balanced, label)
		}
	}
	sort.Strings(perr.Balanced)
	sort.Strings(perr.Unbalanced)
	return perr
}
