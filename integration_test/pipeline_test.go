//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/httpapi"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/jetstream"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/usecase"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/utils"
)

func telegramUpdate(userID int64, text string) []byte {
	return []byte(fmt.Sprintf(`{"update_id": 1, "message": {"message_id": 1, "date": %d,
		"chat": {"id": %d, "type": "private"},
		"from": {"id": %d, "first_name": "Maria", "username": "maria_k"},
		"text": %q}}`, utils.Now().Unix(), userID, userID, text))
}

func (s *HubIntegrationSuite) seedIntegration(ch model.Channel) *model.Integration {
	integration := model.NewIntegration(&model.Integration{Channel: ch, IsActive: true, CompanyID: s.CompanyID})
	s.Require().NoError(s.App.Integrations.Save(s.TenantCtx(), *integration))
	return integration
}

// TestWebhookToLeadOverNATS drives a delivery through the HTTP API, the
// JetStream stream and the routing consumer into a lead.
func (s *HubIntegrationSuite) TestWebhookToLeadOverNATS() {
	integration := s.seedIntegration(model.ChannelTelegram)

	js, err := jetstream.NewClient(s.NATSURL, "integration-test")
	s.Require().NoError(err)
	defer js.Close()

	processor := usecase.NewProcessor(s.App.Routing, js, s.Config, s.CompanyID)
	s.Require().NoError(processor.Setup())
	s.Require().NoError(processor.Start())
	defer processor.Stop()

	server := httpapi.NewServer(s.App.Hub, s.App.Usage, ingestion.NewPublisher(js), httpapi.Options{
		CompanyID:      s.CompanyID,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	}, logger.Log)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := fmt.Sprintf("%s/api/webhooks/telegram/%s", ts.URL, integration.ID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(telegramUpdate(700100, "hello, is the franchise available?")))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Success   bool   `json:"success"`
		MessageID string `json:"message_id"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Require().True(body.Success)
	s.Require().NotEmpty(body.MessageID)

	s.Require().Eventually(func() bool {
		msg, err := s.App.Messages.FindByID(s.TenantCtx(), body.MessageID)
		return err == nil && msg.Status == model.StatusProcessed
	}, 15*time.Second, 200*time.Millisecond, "message routed by the consumer")

	msg, err := s.App.Messages.FindByID(s.TenantCtx(), body.MessageID)
	s.Require().NoError(err)
	s.Require().NotNil(msg.LeadID)
	s.Equal(1, s.CountRows("franchise_deals", "id = $1", *msg.LeadID))
	s.Equal(1, s.CountRows("dedup_mappings", "external_user_id = $1", "700100"))
}

// TestConcurrentMessagesCreateOneLead races several first messages from one
// contact; the unique dedup index leaves exactly one winner.
func (s *HubIntegrationSuite) TestConcurrentMessagesCreateOneLead() {
	integration := s.seedIntegration(model.ChannelTelegram)
	rule := model.NewTriggerRule(integration.ID, model.RuleKeywords, 10, "franchise")
	s.Require().NoError(storage.NewTriggerRuleRepoAdapter(s.App.Postgres).Save(s.TenantCtx(), *rule))

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		id, err := s.App.Hub.ProcessIncomingMessage(s.TenantCtx(), model.ChannelTelegram,
			telegramUpdate(900300, fmt.Sprintf("franchise question %d", i)), integration.ID)
		s.Require().NoError(err)
		ids[i] = id
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			outcome, err := s.App.Routing.ProcessMessage(s.TenantCtx(), id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if outcome.Lead != nil && outcome.Lead.Created {
				created++
			}
		}(id)
	}
	wg.Wait()

	s.Require().Empty(errs)
	s.Equal(1, created, "exactly one message creates the lead")
	s.Equal(1, s.CountRows("dedup_mappings", "channel = $1 AND external_user_id = $2", "telegram", "900300"))

	var winner string
	s.Require().NoError(s.openDB().QueryRowContext(s.Ctx,
		fmt.Sprintf(`SELECT lead_id FROM %q.dedup_mappings WHERE external_user_id = $1`, storage.SchemaName(s.CompanyID)), "900300").Scan(&winner))
	for _, id := range ids {
		msg, err := s.App.Messages.FindByID(s.TenantCtx(), id)
		s.Require().NoError(err)
		s.Equal(model.StatusProcessed, msg.Status, id)
		if s.NotNil(msg.LeadID, id) {
			s.Equal(winner, *msg.LeadID, id)
		}
	}
}

// TestSweepRoutesPendingMessages covers messages whose event was never published.
func (s *HubIntegrationSuite) TestSweepRoutesPendingMessages() {
	integration := s.seedIntegration(model.ChannelTelegram)

	id, err := s.App.Hub.ProcessIncomingMessage(s.TenantCtx(), model.ChannelTelegram,
		telegramUpdate(500500, "booking please"), integration.ID)
	s.Require().NoError(err)

	n, err := s.App.Reprocess.Sweep(s.TenantCtx(), "", utils.Now().Add(time.Second), 10)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.App.Reprocess.Wait()

	msg, err := s.App.Messages.FindByID(s.TenantCtx(), id)
	s.Require().NoError(err)
	s.Equal(model.StatusProcessed, msg.Status)
	s.NotNil(msg.LeadID)
}

// TestUsageCountersUnderConcurrency relies on the upsert being atomic.
func (s *HubIntegrationSuite) TestUsageCountersUnderConcurrency() {
	integration := s.seedIntegration(model.ChannelVK)
	today := utils.StartOfDay(utils.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.App.Usage.Increment(s.TenantCtx(), integration.ID, model.CounterMessagesReceived, today))
		}()
	}
	wg.Wait()
	s.Require().NoError(s.App.Usage.Increment(s.TenantCtx(), integration.ID, model.CounterLeadsCreated, today))

	rows, err := s.App.Usage.FindRange(s.TenantCtx(), integration.ID, today, today)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.EqualValues(20, rows[0].MessagesReceived)
	s.EqualValues(1, rows[0].LeadsCreated)
	s.EqualValues(0, rows[0].DuplicatesPrevented)
}

// TestWebhookURLPersistsSecret checks the issued secret against the stored one.
func (s *HubIntegrationSuite) TestWebhookURLPersistsSecret() {
	integration := s.seedIntegration(model.ChannelWhatsApp)

	raw, err := s.App.Hub.GenerateWebhookURL(s.TenantCtx(), integration.ID, model.ChannelWhatsApp)
	s.Require().NoError(err)

	stored, err := s.App.Integrations.FindByID(s.TenantCtx(), integration.ID)
	s.Require().NoError(err)
	s.Contains(raw, "secret="+stored.WebhookSecret)
	s.Contains(raw, "https://hub.test/api/webhooks/whatsapp/"+integration.ID)
}
