// Package routing decides whether an inbound message opens a new lead.
package routing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/identity"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// Engine routes messages using persisted state only. Rules are read on every
// call so rule changes apply to the next message.
type Engine struct {
	dedup    storage.DedupRepo
	rules    storage.TriggerRuleRepo
	messages storage.InboundMessageRepo
}

func NewEngine(dedup storage.DedupRepo, rules storage.TriggerRuleRepo, messages storage.InboundMessageRepo) *Engine {
	return &Engine{dedup: dedup, rules: rules, messages: messages}
}

// Route returns the decision for msg. Errors are persistence failures; the
// decision is only valid when err is nil.
func (e *Engine) Route(ctx context.Context, msg model.CanonicalMessage, integration *model.Integration) (model.RoutingDecision, error) {
	if integration == nil {
		return model.RoutingDecision{}, fmt.Errorf("%w: nil integration", apperrors.ErrBadRequest)
	}
	log := logger.FromContext(ctx).With(
		zap.String("integration_id", integration.ID),
		zap.String("channel", string(msg.Channel)),
		zap.String("external_user_id", msg.ExternalUserID),
	)
	companyID, _ := tenant.FromContext(ctx)

	decision := model.RoutingDecision{LeadType: integration.LeadType()}

	existing, err := e.findExisting(ctx, msg)
	if err != nil {
		return model.RoutingDecision{}, err
	}
	if existing != nil {
		decision.Reason = model.ReasonDuplicate
		decision.ExistingLeadID = existing.LeadID
		decision.ExistingLeadType = existing.LeadType
		log.Debug("Identity already has a lead", zap.String("lead_id", existing.LeadID))
		observer.IncMessageRouted(companyID, string(decision.Reason))
		return decision, nil
	}

	rules, err := e.rules.FindActiveByIntegration(ctx, integration.ID)
	if err != nil {
		return model.RoutingDecision{}, fmt.Errorf("load trigger rules: %w", err)
	}

	first := &firstMessageCheck{check: func() (bool, error) {
		if strings.TrimSpace(msg.ExternalUserID) == "" {
			return true, nil
		}
		earlier, err := e.messages.HasEarlierMessage(ctx, msg.Channel, msg.ExternalUserID, msg.ReceivedAt)
		if err != nil {
			return false, fmt.Errorf("first message check: %w", err)
		}
		return !earlier, nil
	}}

	if len(rules) == 0 {
		isFirst, err := first.get()
		if err != nil {
			return model.RoutingDecision{}, err
		}
		decision.Create = isFirst
	} else {
		matched, err := evaluateRules(rules, msg.MessageText, first)
		if err != nil {
			return model.RoutingDecision{}, err
		}
		if matched != nil {
			decision.Create = true
			decision.MatchedRuleID = matched.ID
		}
	}

	if decision.Create {
		decision.Reason = model.ReasonTriggerMatched
	} else {
		decision.Reason = model.ReasonNoTriggerMatch
	}

	log.Debug("Routed message",
		zap.String("reason", string(decision.Reason)),
		zap.Int("rules", len(rules)),
		zap.String("matched_rule_id", decision.MatchedRuleID),
	)
	observer.IncMessageRouted(companyID, string(decision.Reason))
	return decision, nil
}

// findExisting looks the identity up by platform id, then by phone.
// Senders without a platform id are matched by phone only. A miss is (nil, nil).
func (e *Engine) findExisting(ctx context.Context, msg model.CanonicalMessage) (*model.DedupMapping, error) {
	contact := identity.DeriveIdentity(msg)
	if contact.PlatformID != "" {
		mapping, err := e.dedup.FindByIdentity(ctx, msg.Channel, contact.PlatformID)
		if err == nil {
			return mapping, nil
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("dedup lookup by identity: %w", err)
		}
	}

	phone := contact.Phone
	if phone == "" {
		return nil, nil
	}
	mapping, err := e.dedup.FindByPhone(ctx, phone)
	if err == nil {
		return mapping, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("dedup lookup by phone: %w", err)
	}
	return nil, nil
}
