// Package billing implements the plan catalog, billing-period math, and
// the entitlement checks that gate every metered or tier-locked action.
package billing

import (
	"fmt"

	"cvforge/internal/types"
)

// Catalog is the read-only plan and package lookup used by entitlement
// checks, the upgrade controller, and order completion. Implementations
// must be safe for concurrent use; the static catalog is immutable after
// construction.
type Catalog interface {
	GetPlan(tier types.PlanTier) (*types.PlanDefinition, error)
	LimitFor(tier types.PlanTier, feature types.Feature) (types.Limit, error)
	HasCapability(tier types.PlanTier, cap types.Capability) (bool, error)
	GetPackage(pkg types.PackageType) (*types.PackageDefinition, error)
	Plans() []types.PlanDefinition
	Packages() []types.PackageDefinition
}

// StaticCatalog is the built-in catalog. Values are fixed at compile
// time; price or limit changes ship as code changes so every environment
// agrees on entitlements.
type StaticCatalog struct {
	plans    map[types.PlanTier]types.PlanDefinition
	packages map[types.PackageType]types.PackageDefinition
}

// compile-time interface check
var _ Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog builds the catalog and validates its internal
// consistency. Construction panics on an invalid catalog: a malformed
// plan table is a build defect, not a runtime condition.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{
		plans: map[types.PlanTier]types.PlanDefinition{
			types.PlanBasic: {
				ID:         types.PlanBasic,
				Name:       "Basic",
				PriceCents: 0,
				Limits: types.PlanLimits{
					CVGenerations:  types.LimitOf(1),
					CoverLetters:   types.LimitOf(0),
					AIRuns:         types.LimitOf(3),
					TemplateAccess: types.LimitOf(2),
				},
				Capabilities: types.PlanCapabilities{},
				Features: []string{
					"1 CV per month",
					"2 starter templates",
					"3 AI assists per month",
				},
				Limitations: []string{
					"No cover letters",
					"No premium templates",
				},
			},
			types.PlanPro: {
				ID:         types.PlanPro,
				Name:       "Pro",
				PriceCents: 2900,
				Limits: types.PlanLimits{
					CVGenerations:  types.LimitOf(5),
					CoverLetters:   types.LimitOf(3),
					AIRuns:         types.LimitOf(25),
					TemplateAccess: types.LimitOf(10),
				},
				Capabilities: types.PlanCapabilities{
					PremiumTemplates: true,
				},
				Features: []string{
					"5 CVs per month",
					"3 cover letters per month",
					"25 AI assists per month",
					"10 templates including premium designs",
				},
				Limitations: []string{
					"No LinkedIn optimization",
				},
			},
			types.PlanPremium: {
				ID:         types.PlanPremium,
				Name:       "Premium",
				PriceCents: 7900,
				Limits: types.PlanLimits{
					CVGenerations:  types.Unlimited(),
					CoverLetters:   types.Unlimited(),
					AIRuns:         types.Unlimited(),
					TemplateAccess: types.Unlimited(),
				},
				Capabilities: types.PlanCapabilities{
					PremiumTemplates:     true,
					LinkedInOptimization: true,
				},
				Features: []string{
					"Unlimited CVs and cover letters",
					"Unlimited AI assists",
					"All templates",
					"LinkedIn profile optimization",
				},
			},
		},
		packages: map[types.PackageType]types.PackageDefinition{
			types.PackageBasic: {
				ID:            types.PackageBasic,
				Name:          "Basic Package",
				PriceCents:    999,
				Currency:      "usd",
				EditsAllowed:  3,
				TemplateCount: 1,
			},
			types.PackageStandard: {
				ID:            types.PackageStandard,
				Name:          "Standard Package",
				PriceCents:    2499,
				Currency:      "usd",
				EditsAllowed:  10,
				CoverLetter:   true,
				TemplateCount: 3,
			},
			types.PackagePremium: {
				ID:                   types.PackagePremium,
				Name:                 "Premium Package",
				PriceCents:           4999,
				Currency:             "usd",
				EditsAllowed:         types.UnlimitedEditsSentinel,
				CoverLetter:          true,
				LinkedInOptimization: true,
				TemplateCount:        10,
			},
		},
	}
	if err := c.validate(); err != nil {
		panic(fmt.Sprintf("billing: invalid plan catalog: %v", err))
	}
	return c
}

// validate checks the closed tier and feature sets against the catalog
// tables so a drifted enum fails at startup instead of reading as zero.
func (c *StaticCatalog) validate() error {
	for _, tier := range types.AllPlanTiers {
		plan, ok := c.plans[tier]
		if !ok {
			return fmt.Errorf("missing plan definition for tier %q", tier)
		}
		for _, feature := range types.AllFeatures {
			if _, ok := plan.Limits.For(feature); !ok {
				return fmt.Errorf("plan %q has no limit for feature %q", tier, feature)
			}
		}
	}
	for _, pkg := range []types.PackageType{types.PackageBasic, types.PackageStandard, types.PackagePremium} {
		if _, ok := c.packages[pkg]; !ok {
			return fmt.Errorf("missing package definition for %q", pkg)
		}
	}
	return nil
}

// GetPlan returns the plan definition for a tier.
// Unknown tiers return ErrCodeUnknownPlan; there is no fallback tier.
func (c *StaticCatalog) GetPlan(tier types.PlanTier) (*types.PlanDefinition, error) {
	plan, ok := c.plans[tier]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeUnknownPlan,
			fmt.Sprintf("unknown plan tier %q", tier), nil)
	}
	return &plan, nil
}

// LimitFor returns the monthly cap for a metered feature on a tier.
func (c *StaticCatalog) LimitFor(tier types.PlanTier, feature types.Feature) (types.Limit, error) {
	plan, err := c.GetPlan(tier)
	if err != nil {
		return types.Limit{}, err
	}
	limit, ok := plan.Limits.For(feature)
	if !ok {
		return types.Limit{}, types.NewAppError(types.ErrCodeUnknownPlan,
			fmt.Sprintf("unknown feature %q", feature), nil)
	}
	return limit, nil
}

// HasCapability reports whether a tier unlocks a binary capability.
func (c *StaticCatalog) HasCapability(tier types.PlanTier, cap types.Capability) (bool, error) {
	plan, err := c.GetPlan(tier)
	if err != nil {
		return false, err
	}
	return plan.Capabilities.Has(cap), nil
}

// GetPackage returns the one-time purchase bundle definition.
func (c *StaticCatalog) GetPackage(pkg types.PackageType) (*types.PackageDefinition, error) {
	def, ok := c.packages[pkg]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown package %q", pkg), nil)
	}
	return &def, nil
}

// Plans returns all plan definitions in ascending rank order.
func (c *StaticCatalog) Plans() []types.PlanDefinition {
	out := make([]types.PlanDefinition, 0, len(c.plans))
	for _, tier := range types.AllPlanTiers {
		out = append(out, c.plans[tier])
	}
	return out
}

// Packages returns all package definitions in price order.
func (c *StaticCatalog) Packages() []types.PackageDefinition {
	return []types.PackageDefinition{
		c.packages[types.PackageBasic],
		c.packages[types.PackageStandard],
		c.packages[types.PackagePremium],
	}
}
