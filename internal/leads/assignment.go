package leads

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/cache"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/observer"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

// Resolver picks the responsible staff member for a new lead. It never
// fails: any lookup problem yields an unassigned lead.
type Resolver struct {
	staff    storage.StaffRepo
	rotation cache.RotationStore
	pick     func(n int) int
}

// NewResolver returns a resolver. With a nil rotation store round_robin is a
// uniform random pick over eligible staff.
func NewResolver(staff storage.StaffRepo, rotation cache.RotationStore) *Resolver {
	return &Resolver{staff: staff, rotation: rotation, pick: rand.IntN}
}

// Resolve returns the assignee for a lead from integration, or nil.
func (r *Resolver) Resolve(ctx context.Context, integration *model.Integration) *string {
	strategy := string(integration.AssignmentStrategy)
	log := logger.FromContext(ctx).With(
		zap.String("integration_id", integration.ID),
		zap.String("strategy", strategy),
	)

	var assignee *string
	switch integration.AssignmentStrategy {
	case model.AssignFixedUser:
		assignee = integration.DefaultAssigneeID
	case model.AssignFirstAdmin:
		admin, err := r.staff.FindFirstAdmin(ctx, integration.FranchiseeID())
		if err != nil {
			log.Info("No admin available for assignment", zap.Error(err))
			break
		}
		assignee = &admin.ID
	case model.AssignRoundRobin:
		assignee = r.roundRobin(ctx, integration, log)
	}

	if assignee == nil {
		observer.IncAssignment(strategy, "unassigned")
		return nil
	}
	observer.IncAssignment(strategy, "assigned")
	id := *assignee
	return &id
}

func (r *Resolver) roundRobin(ctx context.Context, integration *model.Integration, log *zap.Logger) *string {
	users, err := r.staff.FindEligible(ctx, integration.FranchiseeID(), model.AssignableRoles)
	if err != nil {
		log.Info("Eligible staff lookup failed", zap.Error(err))
		return nil
	}
	if len(users) == 0 {
		return nil
	}

	idx := -1
	if r.rotation != nil {
		next, err := r.rotation.Next(ctx, integration.ID, len(users))
		if err != nil {
			log.Warn("Rotation unavailable, falling back to random pick", zap.Error(err))
		} else {
			idx = next
		}
	}
	if idx < 0 || idx >= len(users) {
		idx = r.pick(len(users))
	}
	return &users[idx].ID
}
