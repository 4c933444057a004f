package repository

import (
	"context"
	"database/sql"

	"bizledger/internal/model"

	"gorm.io/gorm"
)

// SnapshotRepository reads and replaces the whole ledger state at once.
type SnapshotRepository interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Replace(ctx context.Context, snap *model.Snapshot) error
	State(ctx context.Context) (*model.SyncState, error)
	MarkReplicated(ctx context.Context, revision int64) error
	MarkSeeded(ctx context.Context) error
}

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Load reads every table inside one transaction so the snapshot is
// consistent with the revision it carries.
func (r *snapshotRepository) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{Counters: map[string]int64{}}
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return loadSnapshot(tx, snap)
	}, readOptions(r.db))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func loadSnapshot(db *gorm.DB, snap *model.Snapshot) error {
	if err := db.Order("code asc").Find(&snap.Clients).Error; err != nil {
		return err
	}
	if err := db.Order("name asc").Find(&snap.Depots).Error; err != nil {
		return err
	}
	if err := db.Order("sku asc").Find(&snap.Products).Error; err != nil {
		return err
	}
	if err := db.Order("depot_id, product_id").Find(&snap.Stock).Error; err != nil {
		return err
	}
	if err := db.Preload("Lines", orderedLines).Order("seq asc").Find(&snap.Documents).Error; err != nil {
		return err
	}
	if err := db.Order("paid_at asc").Find(&snap.Payments).Error; err != nil {
		return err
	}

	var counters []model.Counter
	if err := db.Find(&counters).Error; err != nil {
		return err
	}
	for _, c := range counters {
		snap.Counters[c.Name] = c.Value
	}

	var state model.SyncState
	if err := db.First(&state, "id = ?", model.SyncStateID).Error; err != nil {
		return err
	}
	snap.Seeded = state.Seeded
	snap.Revision = state.Revision
	return nil
}

// readOptions asks postgres for a repeatable-read view. SQLite keeps the
// driver default, which is already serializable.
func readOptions(db *gorm.DB) *sql.TxOptions {
	if db.Dialector.Name() == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

// Replace wipes every snapshot table and writes snap in its place. It must
// run inside a transaction.
func (r *snapshotRepository) Replace(ctx context.Context, snap *model.Snapshot) error {
	db := GetDB(ctx, r.db)

	for _, table := range []interface{}{
		&model.Payment{},
		&model.DocumentLine{},
		&model.Document{},
		&model.StockEntry{},
		&model.Product{},
		&model.Depot{},
		&model.Client{},
		&model.Counter{},
	} {
		if err := db.Where("1 = 1").Delete(table).Error; err != nil {
			return err
		}
	}

	if len(snap.Clients) > 0 {
		if err := db.CreateInBatches(&snap.Clients, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Depots) > 0 {
		if err := db.CreateInBatches(&snap.Depots, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Products) > 0 {
		if err := db.CreateInBatches(&snap.Products, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Stock) > 0 {
		if err := db.CreateInBatches(&snap.Stock, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Documents) > 0 {
		if err := db.CreateInBatches(&snap.Documents, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Payments) > 0 {
		if err := db.CreateInBatches(&snap.Payments, 100).Error; err != nil {
			return err
		}
	}
	if len(snap.Counters) > 0 {
		counters := make([]model.Counter, 0, len(snap.Counters))
		for name, value := range snap.Counters {
			counters = append(counters, model.Counter{Name: name, Value: value})
		}
		if err := db.Create(&counters).Error; err != nil {
			return err
		}
	}

	return db.Model(&model.SyncState{}).Where("id = ?", model.SyncStateID).
		UpdateColumn("seeded", snap.Seeded).Error
}

func (r *snapshotRepository) State(ctx context.Context) (*model.SyncState, error) {
	var state model.SyncState
	if err := GetDB(ctx, r.db).First(&state, "id = ?", model.SyncStateID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// MarkReplicated records the highest revision the remote authority holds.
// It is not a ledger mutation and does not bump the revision.
func (r *snapshotRepository) MarkReplicated(ctx context.Context, revision int64) error {
	return GetDB(ctx, r.db).Model(&model.SyncState{}).
		Where("id = ? AND replicated_revision < ?", model.SyncStateID, revision).
		UpdateColumn("replicated_revision", revision).Error
}

func (r *snapshotRepository) MarkSeeded(ctx context.Context) error {
	return GetDB(ctx, r.db).Model(&model.SyncState{}).
		Where("id = ?", model.SyncStateID).
		UpdateColumn("seeded", true).Error
}
