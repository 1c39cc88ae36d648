package types

import (
	"encoding/json"
	"time"
)

// User is the identity and plan assignment for an account.
// Plan mutation goes through the upgrade controller or the admin
// override; this subsystem never deletes users.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name,omitempty" db:"name"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	Plan          PlanTier  `json:"plan" db:"plan"`
	PlanStartDate time.Time `json:"plan_start_date" db:"plan_start_date"`
	Role          UserRole  `json:"role" db:"role"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PlanLimits holds the per-feature monthly caps for a tier.
// Each field is a tagged Limit; the -1 sentinel lives only at the
// catalog/JSON boundary.
type PlanLimits struct {
	CVGenerations  Limit `json:"cv_generations"`
	CoverLetters   Limit `json:"cover_letter_generations"`
	AIRuns         Limit `json:"ai_runs"`
	TemplateAccess Limit `json:"template_access"`
}

// For returns the limit for a metered feature. Unknown features return
// (zero limit, false); the catalog validates feature names at startup so
// reaching the false branch indicates a programming error.
func (l PlanLimits) For(f Feature) (Limit, bool) {
	switch f {
	case FeatureCVGenerations:
		return l.CVGenerations, true
	case FeatureCoverLetters:
		return l.CoverLetters, true
	case FeatureAIRuns:
		return l.AIRuns, true
	default:
		return Limit{}, false
	}
}

// PlanCapabilities holds the binary tier gates for a plan.
type PlanCapabilities struct {
	PremiumTemplates     bool `json:"premium_templates"`
	LinkedInOptimization bool `json:"linkedin_optimization"`
}

// Has reports whether the capability is unlocked.
func (c PlanCapabilities) Has(cap Capability) bool {
	switch cap {
	case CapabilityPremiumTemplates:
		return c.PremiumTemplates
	case CapabilityLinkedInOptimize:
		return c.LinkedInOptimization
	default:
		return false
	}
}

// PlanDefinition is an immutable catalog entry for one tier.
// Loaded once at process start; never mutated at runtime.
type PlanDefinition struct {
	ID           PlanTier         `json:"id"`
	Name         string           `json:"name"`
	PriceCents   int64            `json:"price_cents"`
	Limits       PlanLimits       `json:"limits"`
	Capabilities PlanCapabilities `json:"capabilities"`
	Features     []string         `json:"features"`
	Limitations  []string         `json:"limitations,omitempty"`
}

// PackageDefinition describes a one-time purchase bundle. Orders stamp
// their entitlement fields from this at completion time; the values are
// captured at the moment of purchase and stay fixed even if the catalog
// changes later.
type PackageDefinition struct {
	ID                   PackageType   `json:"id"`
	Name                 string        `json:"name"`
	PriceCents           int64         `json:"price_cents"`
	Currency             string        `json:"currency"`
	EditsAllowed         EditAllowance `json:"edits_allowed"`
	CoverLetter          bool          `json:"cover_letter"`
	LinkedInOptimization bool          `json:"linkedin_optimization"`
	TemplateCount        int           `json:"template_count"`
}

// UsageCounter is the persisted count of a metered feature's consumption
// by one user within one billing period. At most one row exists per
// (user, feature, period start).
type UsageCounter struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Feature     Feature   `json:"feature" db:"feature"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`
	Count       int       `json:"count" db:"count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Order is a single purchase transaction and the entitlement bundle it
// grants. Entitlement fields stay zeroed until the payment verification
// success transition stamps them from the package definition.
type Order struct {
	ID                string      `json:"id" db:"id"`
	UserID            string      `json:"user_id" db:"user_id"`
	CVID              string      `json:"cv_id,omitempty" db:"cv_id"`
	Package           PackageType `json:"package" db:"package"`
	AmountCents       int64       `json:"amount_cents" db:"amount_cents"`
	Currency          string      `json:"currency" db:"currency"`
	Status            OrderStatus `json:"status" db:"status"`
	Progress          int         `json:"progress" db:"progress"`
	ProviderReference string      `json:"provider_reference,omitempty" db:"provider_reference"`
	AccessCode        string      `json:"-" db:"access_code"`

	// Entitlement bundle, stamped once at completion.
	EditsRemaining       int  `json:"edits_remaining" db:"edits_remaining"`
	HasCoverLetter       bool `json:"has_cover_letter" db:"has_cover_letter"`
	HasLinkedInOptimized bool `json:"has_linkedin_optimization" db:"has_linkedin_optimization"`
	TemplateCount        int  `json:"template_count" db:"template_count"`

	GeneratedFileID string     `json:"generated_file_id,omitempty" db:"generated_file_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// HasUnlimitedEdits reports whether the order was stamped with the
// unlimited-edits allowance. Display only; consumption logic decrements
// the counter like any other value.
func (o *Order) HasUnlimitedEdits() bool {
	return EditAllowance(o.EditsRemaining).IsUnlimited()
}

// CV is the content entity the entitlements protect. The authoring
// payload is opaque here; ownership and template linkage drive access
// control.
type CV struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Title      string          `json:"title" db:"title"`
	TemplateID string          `json:"template_id" db:"template_id"`
	Data       json.RawMessage `json:"data" db:"data"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Session is an authenticated bearer-token session. Only the SHA-256
// digest of the token is stored.
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// LimitStatus is the structured result of a count-based entitlement check.
// It carries everything the calling layer needs to render an upgrade
// prompt; that shape is a contract with the UI.
type LimitStatus struct {
	Feature      Feature   `json:"feature"`
	Reached      bool      `json:"reached"`
	Current      int       `json:"current"`
	Limit        Limit     `json:"limit"`
	CurrentPlan  PlanTier  `json:"current_plan"`
	RequiredPlan *PlanTier `json:"required_plan,omitempty"`
}

// PlanChange is the result of a successful plan transition.
type PlanChange struct {
	UserID       string   `json:"user_id"`
	PreviousPlan PlanTier `json:"previous_plan"`
	NewPlan      PlanTier `json:"new_plan"`
}

// ChargeInit is the reduced payment-gateway response for a newly
// initialized charge.
type ChargeInit struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// ChargeVerification is the reduced payment-gateway response for a
// verification call. The order lifecycle reacts to Succeeded and nothing
// else in the gateway payload.
type ChargeVerification struct {
	Succeeded   bool              `json:"succeeded"`
	Reference   string            `json:"reference"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CoverLetterRequest carries the inputs for AI cover-letter generation.
type CoverLetterRequest struct {
	CVID        string `json:"cv_id" validate:"required,uuid4"`
	JobTitle    string `json:"job_title" validate:"required,max=200"`
	Company     string `json:"company" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=8000"`
}

// AtsReport is the result of an ATS compatibility analysis.
type AtsReport struct {
	Score           int      `json:"score"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}
