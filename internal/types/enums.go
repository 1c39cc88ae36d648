package types

// PlanTier identifies the subscription plan assigned to a user.
// The three tiers form a strict ordering basic < pro < premium which is
// used for upgrade-path validation. Anything outside these values is an
// error, never a silent default.
type PlanTier string

const (
	PlanBasic   PlanTier = "basic"
	PlanPro     PlanTier = "pro"
	PlanPremium PlanTier = "premium"
)

// AllPlanTiers lists the known tiers in ascending rank order.
var AllPlanTiers = []PlanTier{PlanBasic, PlanPro, PlanPremium}

// Rank returns the ordinal position of the tier (basic=0, pro=1, premium=2)
// or -1 for unknown tiers. Upgrade validation compares ranks, never
// per-feature limits.
func (p PlanTier) Rank() int {
	switch p {
	case PlanBasic:
		return 0
	case PlanPro:
		return 1
	case PlanPremium:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the tier is one of the three known plans.
func (p PlanTier) Valid() bool {
	return p.Rank() >= 0
}

// Feature identifies a metered, per-period counted capability.
// The set is closed: an unrecognized feature name is a programming error
// surfaced at startup, not a silent zero.
type Feature string

const (
	FeatureCVGenerations Feature = "cv_generations"
	FeatureCoverLetters  Feature = "cover_letter_generations"
	FeatureAIRuns        Feature = "ai_runs"
)

// AllFeatures lists every metered feature. Used by the usage reset path
// and by exhaustiveness checks in tests.
var AllFeatures = []Feature{FeatureCVGenerations, FeatureCoverLetters, FeatureAIRuns}

// Valid reports whether the feature is a known metered feature.
func (f Feature) Valid() bool {
	switch f {
	case FeatureCVGenerations, FeatureCoverLetters, FeatureAIRuns:
		return true
	default:
		return false
	}
}

// Capability identifies a binary, tier-gated feature that is not counted.
// Eligibility is purely "does my tier unlock this".
type Capability string

const (
	CapabilityPremiumTemplates Capability = "premium_templates"
	CapabilityLinkedInOptimize Capability = "linkedin_optimization"
)

// UserRole defines authorization levels.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// OrderStatus represents the lifecycle state of a one-time purchase.
// Transitions are monotonic forward: pending -> processing -> completed,
// or pending -> failed. completed and failed are terminal.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

// PackageType identifies the one-time purchase bundle tied to an order.
type PackageType string

const (
	PackageBasic    PackageType = "basic"
	PackageStandard PackageType = "standard"
	PackagePremium  PackageType = "premium"
)

// Valid reports whether the package type is known.
func (p PackageType) Valid() bool {
	switch p {
	case PackageBasic, PackageStandard, PackagePremium:
		return true
	default:
		return false
	}
}
