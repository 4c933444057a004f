package repository

import (
	"context"

	"bizledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CounterRepository interface {
	Increment(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
}

type counterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

// Increment bumps the counter and returns the new value. The UPDATE holds the
// row lock until the surrounding transaction ends, so concurrent callers
// never read the same value.
func (r *counterRepository) Increment(ctx context.Context, name string) (int64, error) {
	db := GetDB(ctx, r.db)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Counter{Name: name, Value: 0}).Error; err != nil {
		return 0, err
	}

	if err := db.Model(&model.Counter{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + ?", 1)).Error; err != nil {
		return 0, err
	}

	var counter model.Counter
	if err := db.First(&counter, "name = ?", name).Error; err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (r *counterRepository) Current(ctx context.Context, name string) (int64, error) {
	var counter model.Counter
	err := GetDB(ctx, r.db).Where("name = ?", name).Limit(1).Find(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}
