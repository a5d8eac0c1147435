// Package leads opens leads in the head-office or franchisee funnel and
// records the identity so the same person never opens a second one.
package leads

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/identity"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

const maxNoteText = 2000

// Creator turns a positive routing decision into a lead.
type Creator struct {
	leads    storage.LeadRepo
	dedup    storage.DedupRepo
	usage    storage.UsageCounterRepo
	messages storage.InboundMessageRepo
	resolver *Resolver
	newID    func() string
}

func NewCreator(
	leads storage.LeadRepo,
	dedup storage.DedupRepo,
	usage storage.UsageCounterRepo,
	messages storage.InboundMessageRepo,
	resolver *Resolver,
) *Creator {
	return &Creator{
		leads:    leads,
		dedup:    dedup,
		usage:    usage,
		messages: messages,
		resolver: resolver,
		newID:    uuid.NewString,
	}
}

// CreateLead opens a lead for msg. The dedup insert decides who created the
// lead: when another delivery won it, the message is linked to the winner
// and the result has Created=false.
func (c *Creator) CreateLead(ctx context.Context, msg model.CanonicalMessage, decision model.RoutingDecision, integration *model.Integration) (*model.LeadResult, error) {
	if !decision.Create {
		return nil, fmt.Errorf("%w: routing decision %q does not create a lead", apperrors.ErrBadRequest, decision.Reason)
	}
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx).With(
		zap.String("integration_id", integration.ID),
		zap.String("channel", string(msg.Channel)),
		zap.String("external_user_id", msg.ExternalUserID),
	)

	contact := identity.DeriveIdentity(msg)
	if !contact.Usable() {
		return nil, fmt.Errorf("%w: no name or reachable identity for %s user %q", apperrors.ErrInvalidContact, msg.Channel, msg.ExternalUserID)
	}

	leadType := integration.LeadType()
	var assignee *string
	if c.resolver != nil {
		assignee = c.resolver.Resolve(ctx, integration)
	}

	leadID := c.newID()
	if err := c.insertLead(ctx, companyID, leadID, leadType, msg, contact, integration, assignee); err != nil {
		return nil, err
	}

	result := &model.LeadResult{LeadID: leadID, LeadType: leadType, Created: true, AssigneeID: assignee}

	inserted, err := c.dedup.InsertIfAbsent(ctx, model.DedupMapping{
		ID:             c.newID(),
		Channel:        msg.Channel,
		ExternalUserID: contact.PlatformIDPtr(),
		Phone:          contact.PhonePtr(),
		LeadID:         leadID,
		LeadType:       leadType,
		IntegrationID:  integration.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("persist dedup mapping for lead %s: %w", leadID, err)
	}

	if inserted {
		storage.IncrementUsageBestEffort(ctx, c.usage, integration.ID, model.CounterLeadsCreated)
		observer.IncLeadCreated(companyID, string(leadType))
		log.Info("Lead created", zap.String("lead_id", leadID), zap.String("lead_type", string(leadType)))
	} else {
		winner, err := c.findWinner(ctx, msg, contact)
		if err != nil {
			return nil, err
		}
		log.Warn("Lost dedup race, linking message to existing lead",
			zap.String("stray_lead_id", leadID),
			zap.String("lead_id", winner.LeadID),
		)
		result = &model.LeadResult{LeadID: winner.LeadID, LeadType: winner.LeadType, Created: false}
		storage.IncrementUsageBestEffort(ctx, c.usage, integration.ID, model.CounterDuplicatesPrevented)
		observer.IncDuplicatePrevented(companyID, "insert")
	}

	if contact.PlatformID == "" {
		// No identity to link by; the caller links the message by id.
		return result, nil
	}
	n, err := c.messages.MarkProcessedByIdentity(ctx, msg.Channel, msg.ExternalUserID, msg.ReceivedAt, result.LeadID, result.LeadType)
	if err != nil {
		return nil, fmt.Errorf("link message to lead %s: %w", result.LeadID, err)
	}
	if n == 0 {
		log.Warn("No pending message matched the lead link", zap.String("lead_id", result.LeadID))
	}
	return result, nil
}

func (c *Creator) insertLead(
	ctx context.Context,
	companyID, leadID string,
	leadType model.LeadType,
	msg model.CanonicalMessage,
	contact identity.Contact,
	integration *model.Integration,
	assignee *string,
) error {
	note := composeNote(msg)
	source := msg.Channel.LeadSource()

	switch leadType {
	case model.LeadBooking:
		franchiseeID := integration.FranchiseeID()
		if franchiseeID == nil || *franchiseeID == "" {
			return fmt.Errorf("%w: franchisee integration %s has no owner", apperrors.ErrIntegrationUnavailable, integration.ID)
		}
		lead := model.BookingLead{
			ID:            leadID,
			CompanyID:     companyID,
			FranchiseeID:  *franchiseeID,
			IntegrationID: integration.ID,
			Name:          contact.Name,
			Phone:         contact.PhonePtr(),
			Email:         contact.EmailPtr(),
			Source:        source,
			Stage:         model.StageNew,
			ResponsibleID: assignee,
			Notes:         note,
		}
		lead.SetPlatformIdentity(msg.Channel, msg.ExternalUserID)
		if err := c.leads.CreateBookingLead(ctx, lead); err != nil {
			return fmt.Errorf("create booking lead: %w", err)
		}
	default:
		deal := model.FranchiseDeal{
			ID:            leadID,
			CompanyID:     companyID,
			IntegrationID: integration.ID,
			Name:          contact.Name,
			Phone:         contact.PhonePtr(),
			Email:         contact.EmailPtr(),
			Source:        source,
			Stage:         model.StageNew,
			ResponsibleID: assignee,
			Notes:         note,
		}
		if err := c.leads.CreateFranchiseDeal(ctx, deal); err != nil {
			return fmt.Errorf("create franchise deal: %w", err)
		}
	}
	return nil
}

// findWinner loads the mapping that beat our insert. The conflict may have
// been on the identity or on the phone.
func (c *Creator) findWinner(ctx context.Context, msg model.CanonicalMessage, contact identity.Contact) (*model.DedupMapping, error) {
	if contact.PlatformID != "" {
		winner, err := c.dedup.FindByIdentity(ctx, msg.Channel, contact.PlatformID)
		if err == nil {
			return winner, nil
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("load winning dedup mapping: %w", err)
		}
	}
	if contact.Phone != "" {
		winner, err := c.dedup.FindByPhone(ctx, contact.Phone)
		if err == nil {
			return winner, nil
		}
		if !apperrors.IsNotFoundError(err) {
			return nil, fmt.Errorf("load winning dedup mapping: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: dedup insert was ignored but no existing mapping found", apperrors.ErrConflict)
}

func composeNote(msg model.CanonicalMessage) string {
	text := strings.TrimSpace(msg.MessageText)
	text = truncateRunes(text, maxNoteText)
	if text == "" {
		if len(msg.Attachments) > 0 {
			return fmt.Sprintf("%s message with %d attachment(s)", msg.Channel.DisplayName(), len(msg.Attachments))
		}
		return fmt.Sprintf("%s message", msg.Channel.DisplayName())
	}
	return fmt.Sprintf("%s message: %s", msg.Channel.DisplayName(), text)
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
