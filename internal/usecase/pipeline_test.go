package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/hub"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/leads"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/routing"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

type pipeline struct {
	db      *gorm.DB
	repo    *storage.PostgresRepo
	hub     *hub.Hub
	service *RoutingService
	ctx     context.Context
}

// newPipeline wires the real receipt and routing stack over an in-memory database.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := zaptest.NewLogger(t)
	logger.Log = log

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                utils.Now,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := storage.NewPostgresRepoFromDB(db)
	require.NoError(t, repo.Migrate(context.Background()))

	integrations := storage.NewIntegrationRepoAdapter(repo)
	messages := storage.NewInboundMessageRepoAdapter(repo)
	usage := storage.NewUsageCounterRepoAdapter(repo)
	dedup := storage.NewDedupRepoAdapter(repo)

	engine := routing.NewEngine(dedup, storage.NewTriggerRuleRepoAdapter(repo), messages)
	creator := leads.NewCreator(
		storage.NewLeadRepoAdapter(repo),
		dedup,
		usage,
		messages,
		leads.NewResolver(storage.NewStaffRepoAdapter(repo), nil),
	)

	ctx := logger.WithLogger(tenant.WithCompanyID(context.Background(), "acme"), log)
	return &pipeline{
		db:      db,
		repo:    repo,
		hub:     hub.New(integrations, messages, usage, "https://hub.example.com"),
		service: NewRoutingService(integrations, messages, usage, engine, creator),
		ctx:     ctx,
	}
}

func telegramText(userID, date, text string) []byte {
	return []byte(`{"update_id": 1, "message": {"message_id": 1, "date": ` + date + `,
		"chat": {"id": ` + userID + `, "type": "private"},
		"from": {"id": ` + userID + `, "first_name": "Maria", "username": "maria_k"},
		"text": "` + text + `"}}`)
}

func TestPipeline_FranchiseeFirstAdminTelegram(t *testing.T) {
	p := newPipeline(t)

	franchiseeID := "fr-kazan"
	integration := model.NewFranchiseeIntegration(franchiseeID, model.ChannelTelegram)
	integration.CompanyID = "acme"
	integration.AssignmentStrategy = model.AssignFirstAdmin
	require.NoError(t, p.repo.SaveIntegration(p.ctx, *integration))

	base := utils.Now().Add(-48 * time.Hour)
	manager := model.NewStaffUser(model.RoleManager, &franchiseeID, base)
	admin := model.NewStaffUser(model.RoleAdmin, &franchiseeID, base.Add(time.Minute))
	laterAdmin := model.NewStaffUser(model.RoleAdmin, &franchiseeID, base.Add(2 * time.Minute))
	for _, u := range []*model.StaffUser{manager, admin, laterAdmin} {
		u.CompanyID = "acme"
		require.NoError(t, p.repo.SaveStaffUser(p.ctx, *u))
	}

	// First contact: no trigger rules, so the first message opens a lead.
	firstID, err := p.hub.ProcessIncomingMessage(p.ctx, model.ChannelTelegram,
		telegramText("700100", "1709633700", "I'd like to book"), integration.ID)
	require.NoError(t, err)

	outcome, err := p.service.ProcessMessage(p.ctx, firstID)
	require.NoError(t, err)
	assert.True(t, outcome.Decision.Create)
	assert.Equal(t, model.LeadBooking, outcome.Decision.LeadType)
	require.NotNil(t, outcome.Lead)
	assert.True(t, outcome.Lead.Created)

	var lead model.BookingLead
	require.NoError(t, p.db.First(&lead, "id = ?", outcome.Lead.LeadID).Error)
	assert.Equal(t, franchiseeID, lead.FranchiseeID)
	assert.Equal(t, "maria_k", lead.Name)
	assert.Equal(t, "telegram_integration", lead.Source)
	assert.Equal(t, model.StageNew, lead.Stage)
	require.NotNil(t, lead.ResponsibleID)
	assert.Equal(t, admin.ID, *lead.ResponsibleID, "earliest active admin of the franchisee")
	require.NotNil(t, lead.TelegramUserID)
	assert.Equal(t, "700100", *lead.TelegramUserID)
	assert.Contains(t, lead.Notes, "I'd like to book")

	first, err := p.repo.FindInboundMessageByID(p.ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, first.Status)
	require.NotNil(t, first.LeadID)
	assert.Equal(t, lead.ID, *first.LeadID)

	// Follow-up from the same person is a duplicate, not a second lead.
	secondID, err := p.hub.ProcessIncomingMessage(p.ctx, model.ChannelTelegram,
		telegramText("700100", "1709637300", "what time do you open?"), integration.ID)
	require.NoError(t, err)

	outcome, err = p.service.ProcessMessage(p.ctx, secondID)
	require.NoError(t, err)
	assert.False(t, outcome.Decision.Create)
	assert.Equal(t, model.ReasonDuplicate, outcome.Decision.Reason)
	assert.Equal(t, lead.ID, outcome.Decision.ExistingLeadID)

	second, err := p.repo.FindInboundMessageByID(p.ctx, secondID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, second.Status)
	require.NotNil(t, second.LeadID)
	assert.Equal(t, lead.ID, *second.LeadID)

	var leadCount int64
	require.NoError(t, p.db.Model(&model.BookingLead{}).Count(&leadCount).Error)
	assert.EqualValues(t, 1, leadCount)

	var mappings int64
	require.NoError(t, p.db.Model(&model.DedupMapping{}).Count(&mappings).Error)
	assert.EqualValues(t, 1, mappings)

	counters, err := p.repo.FindUsageRange(p.ctx, integration.ID, utils.Now().AddDate(0, 0, -1), utils.Now())
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.EqualValues(t, 2, counters[0].MessagesReceived)
	assert.EqualValues(t, 1, counters[0].LeadsCreated)
	assert.EqualValues(t, 1, counters[0].DuplicatesPrevented)

	// Redelivery of an already routed event is a no-op.
	outcome, err = p.service.ProcessMessage(p.ctx, firstID)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}

func TestPipeline_KeywordRuleGatesLeadCreation(t *testing.T) {
	p := newPipeline(t)

	integration := model.NewIntegration(&model.Integration{Channel: model.ChannelTelegram, IsActive: true})
	integration.CompanyID = "acme"
	integration.AssignmentStrategy = model.AssignFixedUser
	require.NoError(t, p.repo.SaveIntegration(p.ctx, *integration))

	rule := model.NewTriggerRule(integration.ID, model.RuleKeywords, 10, "franchise", "price")
	rule.MatchMode = model.MatchAll
	require.NoError(t, p.repo.SaveTriggerRule(p.ctx, *rule))

	id, err := p.hub.ProcessIncomingMessage(p.ctx, model.ChannelTelegram,
		telegramText("800200", "1709633700", "hello there"), integration.ID)
	require.NoError(t, err)
	outcome, err := p.service.ProcessMessage(p.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonNoTriggerMatch, outcome.Decision.Reason)
	assert.Nil(t, outcome.Lead)

	id, err = p.hub.ProcessIncomingMessage(p.ctx, model.ChannelTelegram,
		telegramText("800200", "1709633760", "What is the franchise PRICE?"), integration.ID)
	require.NoError(t, err)
	outcome, err = p.service.ProcessMessage(p.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonTriggerMatched, outcome.Decision.Reason)
	require.NotNil(t, outcome.Lead)
	assert.True(t, outcome.Lead.Created)
	assert.Equal(t, model.LeadFranchiseSale, outcome.Lead.LeadType)

	var deal model.FranchiseDeal
	require.NoError(t, p.db.First(&deal, "id = ?", outcome.Lead.LeadID).Error)
	assert.Nil(t, deal.ResponsibleID, "fixed_user without a default assignee stays unassigned")
}

func avitoAnonymous(name, phone, createdAt, text string) []byte {
	return []byte(`{"user_name": "` + name + `", "phone": "` + phone + `",
		"text": "` + text + `", "created_at": "` + createdAt + `"}`)
}

func TestPipeline_AnonymousSendersGetSeparateLeads(t *testing.T) {
	p := newPipeline(t)

	integration := model.NewIntegration(&model.Integration{Channel: model.ChannelAvito, IsActive: true})
	integration.CompanyID = "acme"
	integration.AssignmentStrategy = model.AssignFixedUser
	require.NoError(t, p.repo.SaveIntegration(p.ctx, *integration))

	route := func(payload []byte) *model.RoutingOutcome {
		t.Helper()
		id, err := p.hub.ProcessIncomingMessage(p.ctx, model.ChannelAvito, payload, integration.ID)
		require.NoError(t, err)
		outcome, err := p.service.ProcessMessage(p.ctx, id)
		require.NoError(t, err)

		stored, err := p.repo.FindInboundMessageByID(p.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusProcessed, stored.Status)
		return outcome
	}

	anna := route(avitoAnonymous("Anna", "89990000001", "2025-03-01T10:00:00Z", "is the franchise available?"))
	require.NotNil(t, anna.Lead)
	assert.True(t, anna.Lead.Created)

	boris := route(avitoAnonymous("Boris", "89990000002", "2025-03-01T10:05:00Z", "send me the terms"))
	assert.True(t, boris.Decision.Create)
	require.NotNil(t, boris.Lead)
	assert.True(t, boris.Lead.Created)
	assert.NotEqual(t, anna.Lead.LeadID, boris.Lead.LeadID)

	again := route(avitoAnonymous("Anna", "+7 999 000-00-01", "2025-03-01T11:00:00Z", "any news?"))
	assert.Equal(t, model.ReasonDuplicate, again.Decision.Reason)
	assert.Equal(t, anna.Lead.LeadID, again.Decision.ExistingLeadID)

	var deals, mappings int64
	require.NoError(t, p.db.Model(&model.FranchiseDeal{}).Count(&deals).Error)
	require.NoError(t, p.db.Model(&model.DedupMapping{}).Count(&mappings).Error)
	assert.EqualValues(t, 2, deals)
	assert.EqualValues(t, 2, mappings)
}
