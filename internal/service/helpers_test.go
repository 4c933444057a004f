package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bizledger/internal/clock"
	"bizledger/internal/database"
	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedEvent struct {
	name string
	data interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{name: event, data: data})
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.name)
	}
	return names
}

type testEnv struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	events    *fakePublisher
	txManager repository.TransactionManager

	docRepo      repository.DocumentRepository
	stockRepo    repository.StockRepository
	snapshotRepo repository.SnapshotRepository

	sequence  SequenceService
	stock     StockService
	documents DocumentService
	transform TransformService
	payments  PaymentService
	catalog   CatalogService
	snapshots SnapshotService
	audit     AuditService
}

type envOption func(*envConfig)

type envConfig struct {
	enforceStock bool
	metrics      *metrics.Metrics
}

func withStockEnforcement() envOption {
	return func(c *envConfig) { c.enforceStock = true }
}

func withMetrics(m *metrics.Metrics) envOption {
	return func(c *envConfig) { c.metrics = m }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewConnection(database.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := newTestDB(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	events := &fakePublisher{}

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

	sequence := NewSequenceService(counterRepo, txManager, clk)
	stock := NewStockService(stockRepo, depotRepo, productRepo, auditRepo, txManager, events, cfg.metrics, log)

	return &testEnv{
		db:           db,
		clock:        clk,
		events:       events,
		txManager:    txManager,
		docRepo:      docRepo,
		stockRepo:    stockRepo,
		snapshotRepo: snapshotRepo,
		sequence:     sequence,
		stock:        stock,
		documents: NewDocumentService(docRepo, clientRepo, depotRepo, productRepo, counterRepo, paymentRepo, auditRepo,
			txManager, sequence, clk, events, log),
		transform: NewTransformService(docRepo, counterRepo, auditRepo, txManager, sequence, stock,
			clk, events, cfg.metrics, log, cfg.enforceStock),
		payments:  NewPaymentService(docRepo, paymentRepo, auditRepo, txManager, clk, events, cfg.metrics, log),
		catalog:   NewCatalogService(clientRepo, depotRepo, productRepo, auditRepo, txManager, sequence),
		snapshots: NewSnapshotService(snapshotRepo, depotRepo, auditRepo, txManager, model.Company{Name: "Test Co", Currency: "EUR"}, clk, log),
		audit:     NewAuditService(auditRepo),
	}
}

func (e *testEnv) depot(t *testing.T, name string) uuid.UUID {
	t.Helper()
	d, err := e.catalog.CreateDepot(context.Background(), "tester", CreateDepotRequest{Name: name})
	require.NoError(t, err)
	return d.ID
}

func (e *testEnv) product(t *testing.T, sku, price string) uuid.UUID {
	t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), "tester", CreateProductRequest{
		SKU:   sku,
		Name:  "Product " + sku,
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return uuid.MustParse(p.ID)
}

func (e *testEnv) client(t *testing.T, name string) uuid.UUID {
	t.Helper()
	c, err := e.catalog.CreateClient(context.Background(), "tester", CreateClientRequest{Name: name})
	require.NoError(t, err)
	return c.ID
}

// salesQuote creates a draft sales DV with one line.
func (e *testEnv) salesQuote(t *testing.T, depotID, productID uuid.UUID, qty int, price string) DocumentResponse {
	t.Helper()
	unit := decimal.RequireFromString(price)
	doc, err := e.documents.Create(context.Background(), "tester", CreateDocumentRequest{
		Type:     string(model.DocTypeQuote),
		Channel:  string(model.ChannelSales),
		DepotID:  depotID.String(),
		ClientID: e.client(t, "Client "+uuid.NewString()[:8]).String(),
		Lines:    []DocumentLineRequest{{ProductID: productID.String(), Quantity: qty, UnitPrice: &unit}},
	})
	require.NoError(t, err)
	return doc
}

// chain transforms doc n times and returns every produced document.
func (e *testEnv) chain(t *testing.T, doc DocumentResponse, n int) []DocumentResponse {
	t.Helper()
	out := make([]DocumentResponse, 0, n)
	current := doc
	for i := 0; i < n; i++ {
		next, err := e.transform.Transform(context.Background(), "tester", uuid.MustParse(current.ID))
		require.NoError(t, err)
		out = append(out, next)
		current = next
	}
	return out
}
