//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	pgtc "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/app"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/config"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/storage"
	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
)

const DefaultCompanyID = "acme"

// hubTables are truncated between tests.
var hubTables = []string{
	"integrations",
	"trigger_rules",
	"staff_users",
	"inbound_messages",
	"dedup_mappings",
	"usage_counters",
	"franchise_deals",
	"booking_leads",
}

// HubIntegrationSuite runs the hub against real Postgres and NATS containers.
type HubIntegrationSuite struct {
	suite.Suite
	Postgres    *pgtc.PostgresContainer
	PostgresDSN string
	NATS        testcontainers.Container
	NATSURL     string
	CompanyID   string
	Config      *config.Config
	App         *app.App
	Ctx         context.Context
	cancel      context.CancelFunc
}

func (s *HubIntegrationSuite) SetupSuite() {
	s.Ctx, s.cancel = context.WithCancel(context.Background())
	logger.Log = zaptest.NewLogger(s.T()).Named("integration")

	s.CompanyID = os.Getenv("TEST_COMPANY_ID")
	if s.CompanyID == "" {
		s.CompanyID = DefaultCompanyID
	}

	var err error
	s.Postgres, s.PostgresDSN, err = startPostgres(s.Ctx)
	s.Require().NoError(err, "start postgres")

	s.NATS, s.NATSURL, err = startNATS(s.Ctx)
	s.Require().NoError(err, "start nats")

	s.Config, err = config.LoadConfig("")
	s.Require().NoError(err)
	s.Config.Company.ID = s.CompanyID
	s.Config.Database.PostgresDSN = s.PostgresDSN
	s.Config.Database.PostgresAutoMigrate = true
	s.Config.NATS.URL = s.NATSURL
	s.Config.Redis.Addr = ""
	s.Config.Hub.BaseURL = "https://hub.test"
	s.Config.WorkerPools.Reprocess.PoolSize = 4

	s.App, err = app.New(s.Ctx, s.Config, logger.Log)
	s.Require().NoError(err, "wire app")
}

func (s *HubIntegrationSuite) TearDownSuite() {
	if s.App != nil {
		s.App.Close(context.Background())
	}
	if s.NATS != nil {
		if err := s.NATS.Terminate(context.Background()); err != nil {
			s.T().Logf("Error terminating NATS container: %v", err)
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Terminate(context.Background()); err != nil {
			s.T().Logf("Error terminating PostgreSQL container: %v", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// SetupTest truncates the company schema so each test starts empty.
func (s *HubIntegrationSuite) SetupTest() {
	s.Require().NoError(truncateTables(s.Ctx, s.PostgresDSN, storage.SchemaName(s.CompanyID)))
}

// TenantCtx scopes ctx to the suite company.
func (s *HubIntegrationSuite) TenantCtx() context.Context {
	return s.App.Context(s.Ctx)
}

func (s *HubIntegrationSuite) openDB() *sql.DB {
	db, err := sql.Open("pgx", s.PostgresDSN)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	return db
}

// CountRows counts rows of table in the suite company schema.
func (s *HubIntegrationSuite) CountRows(table, where string, args ...interface{}) int {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q.%s`, storage.SchemaName(s.CompanyID), table)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	s.Require().NoError(s.openDB().QueryRowContext(s.Ctx, query, args...).Scan(&n))
	return n
}

func TestRunHubIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("container suite skipped in short mode")
	}
	suite.Run(t, new(HubIntegrationSuite))
}

func startPostgres(ctx context.Context) (*pgtc.PostgresContainer, string, error) {
	pgContainer, err := pgtc.Run(ctx,
		"postgres:17-bookworm",
		pgtc.WithDatabase("integration_hub"),
		pgtc.WithUsername("postgres"),
		pgtc.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}
	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return pgContainer, "", fmt.Errorf("failed to get PostgreSQL DSN: %w", err)
	}
	return pgContainer, dsn, nil
}

func startNATS(ctx context.Context) (testcontainers.Container, string, error) {
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.11-alpine",
			Cmd:          []string{"-js", "-sd", "/data"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start NATS container: %w", err)
	}
	host, err := natsContainer.Host(ctx)
	if err != nil {
		return natsContainer, "", fmt.Errorf("failed to get NATS host: %w", err)
	}
	port, err := natsContainer.MappedPort(ctx, "4222")
	if err != nil {
		return natsContainer, "", fmt.Errorf("failed to get NATS port: %w", err)
	}
	return natsContainer, fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}

func truncateTables(ctx context.Context, dsn, schemaName string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	for _, table := range hubTables {
		stmt := fmt.Sprintf(`TRUNCATE TABLE %q.%s CASCADE`, schemaName, table)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate %s.%s: %w", schemaName, table, err)
		}
	}
	return nil
}
