package types

import (
	"encoding/json"
	"time"
)

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
	TotalItems *int   `json:"total_items,omitempty"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// AuditEvent records an action taken on a resource for auditing purposes.
type AuditEvent struct {
	ID           string          `json:"id"`
	Actor        Actor           `json:"actor"`
	Action       string          `json:"action"`
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Standard audit action strings.
// Handlers MUST use these action strings for consistency.
const (
	AuditActionCVCreated         = "cv.created"
	AuditActionCVEdited          = "cv.edited"
	AuditActionOrderCheckout     = "order.checkout.created"
	AuditActionOrderCompleted    = "order.completed"
	AuditActionOrderFailed       = "order.failed"
	AuditActionPlanUpgraded      = "plan.upgraded"
	AuditActionAdminPlanOverride = "admin.plan_overridden"
	AuditActionAdminUsageReset   = "admin.usage_reset"
)
