package database

import (
	"fmt"
	"time"

	"go-customs-ledger/pkg/config"
	ledgerlog "go-customs-ledger/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the ledger database selected by DB_DRIVER. GORM's own
// logging goes through log as well.
func Connect(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	if log == nil {
		log = ledgerlog.Discard()
	}
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.DBDriver {
	case "sqlite":
		dsn := cfg.DBURL
		if dsn == "" {
			dsn = "file:ledger.db?_pragma=busy_timeout(5000)"
		}
		db, err = ConnectSQLite(dsn, log)
	default:
		db, err = ConnectPostgres(cfg, log)
	}
	if err != nil {
		return nil, err
	}

	log.WithField("driver", cfg.DBDriver).Info("database connection established")

	if cfg.DBTracing {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
			return nil, fmt.Errorf("enable db tracing: %w", err)
		}
	}
	return db, nil
}

func ConnectPostgres(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	dsn := cfg.DBURL
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=%s",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBTimezone,
		)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // Disables implicit prepared statements for Supabase Transaction Mode
	}), gormConfig(log, logger.Info))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func gormConfig(log *logrus.Logger, level logger.LogLevel) *gorm.Config {
	if log == nil {
		log = ledgerlog.Discard()
	}
	newLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)

	return &gorm.Config{
		Logger:      newLogger,
		PrepareStmt: false,
		// Ledger integrity is enforced by the mutation protocol, not by FKs.
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}
