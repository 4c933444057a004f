// Package app wires repositories and services over one database handle.
package app

import (
	"bizledger/internal/clock"
	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"
	"bizledger/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Clock        clock.Clock
	Events       service.EventPublisher
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Company      model.Company
	EnforceStock bool
}

// Services is the ledger's service layer.
type Services struct {
	TxManager repository.TransactionManager

	Sequence  service.SequenceService
	Stock     service.StockService
	Documents service.DocumentService
	Transform service.TransformService
	Payments  service.PaymentService
	Catalog   service.CatalogService
	Snapshots service.SnapshotService
	Audit     service.AuditService
}

func NewServices(db *gorm.DB, deps Deps) *Services {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	txManager := repository.NewTransactionManager(db)
	counterRepo := repository.NewCounterRepository(db)
	stockRepo := repository.NewStockRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	clientRepo := repository.NewClientRepository(db)
	depotRepo := repository.NewDepotRepository(db)
	productRepo := repository.NewProductRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	sequence := service.NewSequenceService(counterRepo, txManager, deps.Clock)
	stock := service.NewStockService(stockRepo, depotRepo, productRepo, auditRepo, txManager, deps.Events, deps.Metrics, deps.Log)

	return &Services{
		TxManager: txManager,
		Sequence:  sequence,
		Stock:     stock,
		Documents: service.NewDocumentService(docRepo, clientRepo, depotRepo, productRepo, counterRepo, paymentRepo, auditRepo,
			txManager, sequence, deps.Clock, deps.Events, deps.Log),
		Transform: service.NewTransformService(docRepo, counterRepo, auditRepo, txManager, sequence, stock,
			deps.Clock, deps.Events, deps.Metrics, deps.Log, deps.EnforceStock),
		Payments:  service.NewPaymentService(docRepo, paymentRepo, auditRepo, txManager, deps.Clock, deps.Events, deps.Metrics, deps.Log),
		Catalog:   service.NewCatalogService(clientRepo, depotRepo, productRepo, auditRepo, txManager, sequence),
		Snapshots: service.NewSnapshotService(snapshotRepo, depotRepo, auditRepo, txManager, deps.Company, deps.Clock, deps.Log),
		Audit:     service.NewAuditService(auditRepo),
	}
}
