package database

import (
	"fmt"

	"github.com/pensionos/search-go/internal/config"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		logger.Warn(fmt.Sprintf("database migration warning: %v", err))
	}

	DB = db
	logger.Info("database connected")
	return db, nil
}

// autoMigrate 按依赖顺序迁移关系表
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.PensionPlan{},
		&models.Document{},
		&models.Client{},
		&models.ChatMessage{},
		&models.Upload{},
	)
}

func CloseDB() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
