package service

import (
	"context"
	"fmt"

	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockAdjustment is one signed change to a (depot, product) entry.
// DocumentID is set when a document drives the change.
type StockAdjustment struct {
	DepotID    uuid.UUID
	ProductID  uuid.UUID
	Delta      int
	Reason     string
	DocumentID *uuid.UUID
	// Validate rejects an outgoing delta that would exceed on-hand stock.
	Validate bool
}

// DTOs
type AdjustStockRequest struct {
	DepotID   string `json:"depot_id" binding:"required,uuid"`
	ProductID string `json:"product_id" binding:"required,uuid"`
	Delta     int    `json:"delta" binding:"required"`
	Validate  bool   `json:"validate"`
}

type TransferStockRequest struct {
	FromDepotID string `json:"from_depot_id" binding:"required,uuid"`
	ToDepotID   string `json:"to_depot_id" binding:"required,uuid"`
	ProductID   string `json:"product_id" binding:"required,uuid"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	Validate    bool   `json:"validate"`
}

type StockEntryResponse struct {
	DepotID   string `json:"depot_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type StockService interface {
	Adjust(ctx context.Context, adj StockAdjustment) (model.StockEntry, error)
	AdjustManual(ctx context.Context, actor string, req AdjustStockRequest) (StockEntryResponse, error)
	QuantityOf(ctx context.Context, depotID, productID uuid.UUID) (int, error)
	Remove(ctx context.Context, actor string, depotID, productID uuid.UUID) error
	EnsureAvailable(ctx context.Context, depotID, productID uuid.UUID, qty int) error
	Transfer(ctx context.Context, actor string, req TransferStockRequest) error
	List(ctx context.Context, depotID *uuid.UUID, page, limit int) ([]StockEntryResponse, int64, error)
	Movements(ctx context.Context, depotID, productID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error)
}

type stockService struct {
	stockRepo   repository.StockRepository
	depotRepo   repository.DepotRepository
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	events      EventPublisher
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewStockService(
	stockRepo repository.StockRepository,
	depotRepo repository.DepotRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
) StockService {
	return &stockService{
		stockRepo:   stockRepo,
		depotRepo:   depotRepo,
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		events:      events,
		metrics:     m,
		log:         log.Named("stock"),
	}
}

// Adjust applies a signed delta and journals it. The ledger itself accepts
// negative results unless the adjustment asks for validation.
func (s *stockService) Adjust(ctx context.Context, adj StockAdjustment) (model.StockEntry, error) {
	entry := model.StockEntry{DepotID: adj.DepotID, ProductID: adj.ProductID}
	if adj.Reason == "" {
		adj.Reason = model.ReasonManual
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if adj.Delta == 0 {
			qty, err := s.stockRepo.QuantityOf(txCtx, adj.DepotID, adj.ProductID)
			entry.Quantity = qty
			return err
		}
		if adj.Validate && adj.Delta < 0 {
			if err := s.EnsureAvailable(txCtx, adj.DepotID, adj.ProductID, -adj.Delta); err != nil {
				return err
			}
		}

		after, err := s.stockRepo.Adjust(txCtx, adj.DepotID, adj.ProductID, adj.Delta)
		if err != nil {
			return fmt.Errorf("failed to adjust stock: %w", err)
		}
		entry.Quantity = after

		direction := model.MovementIn
		if adj.Delta < 0 {
			direction = model.MovementOut
		}
		if err := s.stockRepo.CreateMovement(txCtx, &model.StockMovement{
			DepotID:         adj.DepotID,
			ProductID:       adj.ProductID,
			DocumentID:      adj.DocumentID,
			Direction:       direction,
			Reason:          adj.Reason,
			QuantityChanged: adj.Delta,
			QuantityAfter:   after,
		}); err != nil {
			return fmt.Errorf("failed to journal stock movement: %w", err)
		}

		repository.AfterCommit(txCtx, func() { s.metrics.IncStockAdjustment(adj.Reason) })
		publish(txCtx, s.events, EventStockAdjusted, StockEntryResponse{
			DepotID:   adj.DepotID.String(),
			ProductID: adj.ProductID.String(),
			Quantity:  after,
		})
		return nil
	})
	if err != nil {
		return model.StockEntry{}, err
	}
	return entry, nil
}

func (s *stockService) AdjustManual(ctx context.Context, actor string, req AdjustStockRequest) (StockEntryResponse, error) {
	depotID, productID, err := s.parsePair(ctx, req.DepotID, req.ProductID)
	if err != nil {
		return StockEntryResponse{}, err
	}
	if req.Delta == 0 {
		return StockEntryResponse{}, invalid("delta", "must not be zero")
	}

	var entry model.StockEntry
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		entry, err = s.Adjust(txCtx, StockAdjustment{
			DepotID:   depotID,
			ProductID: productID,
			Delta:     req.Delta,
			Reason:    model.ReasonManual,
			Validate:  req.Validate,
		})
		if err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionAdjustStock, productID.String(), "", req)
	})
	if err != nil {
		return StockEntryResponse{}, err
	}

	s.log.Info("stock adjusted",
		zap.String("depot_id", depotID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("delta", req.Delta),
		zap.Int("quantity", entry.Quantity),
	)
	return toStockEntryResponse(entry), nil
}

func (s *stockService) QuantityOf(ctx context.Context, depotID, productID uuid.UUID) (int, error) {
	return s.stockRepo.QuantityOf(ctx, depotID, productID)
}

// Remove drops the entry. A non-zero quantity is discarded.
func (s *stockService) Remove(ctx context.Context, actor string, depotID, productID uuid.UUID) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		discarded, err := s.stockRepo.Remove(txCtx, depotID, productID)
		if err != nil {
			return fmt.Errorf("failed to remove stock entry: %w", err)
		}
		if discarded != 0 {
			s.log.Warn("stock entry removed with non-zero quantity",
				zap.String("depot_id", depotID.String()),
				zap.String("product_id", productID.String()),
				zap.Int("discarded", discarded),
			)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionRemoveStock, productID.String(), "", map[string]interface{}{
			"depot_id":  depotID.String(),
			"discarded": discarded,
		})
	})
}

// EnsureAvailable fails with ErrInsufficientStock when the depot holds less than qty.
func (s *stockService) EnsureAvailable(ctx context.Context, depotID, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	onHand, err := s.stockRepo.QuantityOf(ctx, depotID, productID)
	if err != nil {
		return err
	}
	if onHand < qty {
		return fmt.Errorf("%w: product %s has %d on hand in depot %s, %d requested",
			ErrInsufficientStock, productID, onHand, depotID, qty)
	}
	return nil
}

// Transfer moves stock between depots in one transaction.
func (s *stockService) Transfer(ctx context.Context, actor string, req TransferStockRequest) error {
	fromID, productID, err := s.parsePair(ctx, req.FromDepotID, req.ProductID)
	if err != nil {
		return err
	}
	toID, err := s.parseDepot(ctx, req.ToDepotID)
	if err != nil {
		return err
	}
	if fromID == toID {
		return invalid("to_depot_id", "must differ from the source depot")
	}
	if req.Quantity <= 0 {
		return invalid("quantity", "must be greater than zero")
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Adjust(txCtx, StockAdjustment{
			DepotID:   fromID,
			ProductID: productID,
			Delta:     -req.Quantity,
			Reason:    model.ReasonTransfer,
			Validate:  req.Validate,
		}); err != nil {
			return err
		}
		if _, err := s.Adjust(txCtx, StockAdjustment{
			DepotID:   toID,
			ProductID: productID,
			Delta:     req.Quantity,
			Reason:    model.ReasonTransfer,
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionTransferStock, productID.String(), "", req)
	})
}

func (s *stockService) List(ctx context.Context, depotID *uuid.UUID, page, limit int) ([]StockEntryResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	entries, total, err := s.stockRepo.List(ctx, depotID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]StockEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, toStockEntryResponse(e))
	}
	return res, total, nil
}

func (s *stockService) Movements(ctx context.Context, depotID, productID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	return s.stockRepo.ListMovements(ctx, depotID, productID, page, limit)
}

func (s *stockService) parsePair(ctx context.Context, depot, product string) (uuid.UUID, uuid.UUID, error) {
	depotID, err := s.parseDepot(ctx, depot)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	productID, err := uuid.Parse(product)
	if err != nil {
		return uuid.Nil, uuid.Nil, invalid("product_id", "invalid product id")
	}
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return uuid.Nil, uuid.Nil, notFound("product", err)
	}
	return depotID, productID, nil
}

func (s *stockService) parseDepot(ctx context.Context, depot string) (uuid.UUID, error) {
	depotID, err := uuid.Parse(depot)
	if err != nil {
		return uuid.Nil, invalid("depot_id", "invalid depot id")
	}
	if _, err := s.depotRepo.FindByID(ctx, depotID); err != nil {
		return uuid.Nil, notFound("depot", err)
	}
	return depotID, nil
}

func toStockEntryResponse(e model.StockEntry) StockEntryResponse {
	return StockEntryResponse{
		DepotID:   e.DepotID.String(),
		ProductID: e.ProductID.String(),
		Quantity:  e.Quantity,
	}
}
