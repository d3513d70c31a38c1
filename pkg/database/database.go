package database

import (
	"fmt"
	"log"
	"retest_backend/internal/config"
	"retest_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Models 本服务拥有的全部表，按迁移顺序排列
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Test{},
		&model.RemediationAssignment{},
		&model.RemediationTarget{},
		&model.AttemptRecord{},
		&model.TestResult{},
		&model.BestRetestSummary{},
		&model.SummaryRefreshTask{},
	}
}

func dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	d, err := dialector(&cfg.Database)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == DriverSQLite {
		// sqlite 只允许单写连接
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Println("Database connection established")

	// release 模式下默认不自动迁移，需显式 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Println("Database migration completed")
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
