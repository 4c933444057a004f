package repository

import (
	"context"

	"bizledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepository interface {
	Adjust(ctx context.Context, depotID, productID uuid.UUID, delta int) (int, error)
	QuantityOf(ctx context.Context, depotID, productID uuid.UUID) (int, error)
	Remove(ctx context.Context, depotID, productID uuid.UUID) (int, error)
	List(ctx context.Context, depotID *uuid.UUID, page, limit int) ([]model.StockEntry, int64, error)
	CreateMovement(ctx context.Context, movement *model.StockMovement) error
	ListMovements(ctx context.Context, depotID, productID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error)
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

// Adjust applies delta to the (depot, product) entry, creating it when absent,
// and returns the quantity after the change.
func (r *stockRepository) Adjust(ctx context.Context, depotID, productID uuid.UUID, delta int) (int, error) {
	db := GetDB(ctx, r.db)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.StockEntry{DepotID: depotID, ProductID: productID}).Error; err != nil {
		return 0, err
	}

	if err := db.Model(&model.StockEntry{}).
		Where("depot_id = ? AND product_id = ?", depotID, productID).
		Updates(map[string]interface{}{"quantity": gorm.Expr("quantity + ?", delta)}).Error; err != nil {
		return 0, err
	}

	return r.QuantityOf(ctx, depotID, productID)
}

func (r *stockRepository) QuantityOf(ctx context.Context, depotID, productID uuid.UUID) (int, error) {
	var entries []model.StockEntry
	if err := GetDB(ctx, r.db).
		Where("depot_id = ? AND product_id = ?", depotID, productID).
		Limit(1).Find(&entries).Error; err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Quantity, nil
}

// Remove deletes the entry and returns the quantity it held.
func (r *stockRepository) Remove(ctx context.Context, depotID, productID uuid.UUID) (int, error) {
	qty, err := r.QuantityOf(ctx, depotID, productID)
	if err != nil {
		return 0, err
	}
	if err := GetDB(ctx, r.db).
		Where("depot_id = ? AND product_id = ?", depotID, productID).
		Delete(&model.StockEntry{}).Error; err != nil {
		return 0, err
	}
	return qty, nil
}

func (r *stockRepository) List(ctx context.Context, depotID *uuid.UUID, page, limit int) ([]model.StockEntry, int64, error) {
	var entries []model.StockEntry
	var total int64

	query := GetDB(ctx, r.db).Model(&model.StockEntry{})
	if depotID != nil {
		query = query.Where("depot_id = ?", *depotID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("depot_id, product_id").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *stockRepository) CreateMovement(ctx context.Context, movement *model.StockMovement) error {
	return GetDB(ctx, r.db).Create(movement).Error
}

func (r *stockRepository) ListMovements(ctx context.Context, depotID, productID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error) {
	var movements []model.StockMovement
	var total int64

	query := GetDB(ctx, r.db).Model(&model.StockMovement{}).
		Where("depot_id = ? AND product_id = ?", depotID, productID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&movements).Error; err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}
