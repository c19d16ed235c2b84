package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	switch driver {
	case "postgres":
		if dsn == "" {
			dsn = "postgres://localhost:5432/freightrates?sslmode=disable"
		}
		gormDialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "freightrates.db"
		}
		gormDialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&CachedRate{},
		&CasbinRule{},
	)
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Rates

func (s *GormStorage) LatestRate(ctx context.Context, origin, destination, mode string, now time.Time) (*CachedRate, error) {
	var rec CachedRate
	result := s.db.WithContext(ctx).
		Where("origin = ? AND destination = ? AND mode = ? AND valid_until > ?", origin, destination, mode, now.UTC()).
		Order("created_at desc").
		First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

func (s *GormStorage) SaveRate(ctx context.Context, rec CachedRate) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	// Times are stored in UTC so that text-backed dialects compare correctly.
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ValidUntil = rec.ValidUntil.UTC()
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStorage) CountRatesSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	result := s.db.WithContext(ctx).Model(&CachedRate{}).
		Where("created_at >= ?", since.UTC()).
		Count(&n)
	return n, result.Error
}

// Casbin rules

func (s *GormStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	var rules []CasbinRule
	result := s.db.WithContext(ctx).Order("id").Find(&rules)
	return rules, result.Error
}

func (s *GormStorage) AddCasbinRule(ctx context.Context, r CasbinRule) error {
	var n int64
	if err := s.ruleQuery(ctx, r).Model(&CasbinRule{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	r.ID = 0
	return s.db.WithContext(ctx).Create(&r).Error
}

func (s *GormStorage) RemoveCasbinRule(ctx context.Context, r CasbinRule) error {
	return s.ruleQuery(ctx, r).Delete(&CasbinRule{}).Error
}

func (s *GormStorage) ruleQuery(ctx context.Context, r CasbinRule) *gorm.DB {
	return s.db.WithContext(ctx).Where(
		"ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?",
		r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5,
	)
}
