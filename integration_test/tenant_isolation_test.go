//go:build integration

package integration_test

import (
	"context"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/apperrors"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/tenant"
)

// TestCompanySchemasAreIsolated stores an integration for the suite company
// and checks another company's schema cannot see it.
func (s *HubIntegrationSuite) TestCompanySchemasAreIsolated() {
	const other = "globex"

	otherRepo, err := storage.NewPostgresRepo(s.PostgresDSN, true, other)
	s.Require().NoError(err)
	defer func() { _ = otherRepo.Close(context.Background()) }()

	integration := s.seedIntegration(model.ChannelAvito)

	otherCtx := tenant.WithCompanyID(s.Ctx, other)
	_, err = storage.NewIntegrationRepoAdapter(otherRepo).FindByID(otherCtx, integration.ID)
	s.True(apperrors.IsNotFoundError(err), "got %v", err)

	found, err := s.App.Integrations.FindByID(s.TenantCtx(), integration.ID)
	s.Require().NoError(err)
	s.Equal(integration.ID, found.ID)
}

// TestRepositoriesRequireTenant rejects calls without a company in context.
func (s *HubIntegrationSuite) TestRepositoriesRequireTenant() {
	_, err := s.App.Integrations.FindByID(s.Ctx, "anything")
	s.Error(err)
}

// TestMigrateIsIdempotent reruns migration on an existing schema.
func (s *HubIntegrationSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.App.Postgres.Migrate(s.TenantCtx()))
	s.Require().NoError(s.App.Postgres.Ping(s.Ctx))
}
