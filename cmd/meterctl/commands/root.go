package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/drople/metering/internal/database"
	"github.com/drople/metering/internal/services/account"
	"github.com/drople/metering/internal/services/billing"
	"github.com/drople/metering/internal/services/entitlement"
	"github.com/drople/metering/internal/services/notify"
	"github.com/drople/metering/internal/services/usage"
)

var (
	db         *gorm.DB
	logger     *zap.Logger
	outputJSON bool
)

// Init opens the database connection shared by all subcommands.
func Init(dbURL string, jsonOutput bool) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is required (--db-url or DATABASE_URL)")
	}

	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		return err
	}

	db, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	outputJSON = jsonOutput
	return nil
}

// newEngine builds a billing engine over the shared connection. The CLI
// skips threshold alerting; notifications and the usage trail behave as in
// the server.
func newEngine() *billing.Engine {
	return billing.NewEngine(&billing.Config{
		Logger:       logger,
		Accounts:     account.NewStore(db, logger),
		Entitlements: entitlement.NewStore(db, logger),
		Usage:        usage.NewRecorder(db, logger),
		Notifier:     notify.NewService(db, logger),
	})
}

func printResult(v interface{}) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Printf("%+v\n", v)
	return nil
}
