package model

type RoutingReason string

const (
	ReasonDuplicate      RoutingReason = "duplicate"
	ReasonNoTriggerMatch RoutingReason = "no_trigger_match"
	ReasonTriggerMatched RoutingReason = "trigger_matched"
)

// RoutingDecision is the routing engine's verdict for one message.
// LeadType is always derived from the integration owner. For duplicates,
// ExistingLeadType is the funnel the existing lead actually lives in, which
// differs from LeadType when the phone matched a lead from another owner.
type RoutingDecision struct {
	Create           bool          `json:"create"`
	Reason           RoutingReason `json:"reason"`
	LeadType         LeadType      `json:"lead_type"`
	ExistingLeadID   string        `json:"existing_lead_id,omitempty"`
	ExistingLeadType LeadType      `json:"existing_lead_type,omitempty"`
	MatchedRuleID    string        `json:"matched_rule_id,omitempty"`
}

// RoutingOutcome is what the routing pipeline did with a stored message.
type RoutingOutcome struct {
	MessageID string          `json:"message_id"`
	Decision  RoutingDecision `json:"decision"`
	Lead      *LeadResult     `json:"lead,omitempty"`
	Skipped   bool            `json:"skipped,omitempty"`
}
