package service

import (
	"context"
	"errors"
	"fmt"

	"bizledger/internal/clock"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"go.uber.org/zap"
)

// DefaultDepotName is the depot created when an empty ledger is seeded.
const DefaultDepotName = "Main depot"

// SnapshotService reads and replaces the whole ledger state.
type SnapshotService interface {
	Export(ctx context.Context) (*model.Snapshot, error)
	// Import replaces all state when the local revision still equals
	// expectedRevision and returns the revision the import produced.
	Import(ctx context.Context, actor string, snap *model.Snapshot, expectedRevision int64) (int64, error)
	Seed(ctx context.Context) error
	State(ctx context.Context) (*model.SyncState, error)
	MarkReplicated(ctx context.Context, revision int64) error
}

type snapshotService struct {
	snapshotRepo repository.SnapshotRepository
	depotRepo    repository.DepotRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	company      model.Company
	clock        clock.Clock
	log          *zap.Logger
}

func NewSnapshotService(
	snapshotRepo repository.SnapshotRepository,
	depotRepo repository.DepotRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	company model.Company,
	clk clock.Clock,
	log *zap.Logger,
) SnapshotService {
	return &snapshotService{
		snapshotRepo: snapshotRepo,
		depotRepo:    depotRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		company:      company,
		clock:        clk,
		log:          log.Named("snapshot"),
	}
}

func (s *snapshotService) Export(ctx context.Context) (*model.Snapshot, error) {
	snap, err := s.snapshotRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.Company = s.company
	snap.TakenAt = s.clock.Now().UTC()
	return snap, nil
}

func (s *snapshotService) Import(ctx context.Context, actor string, snap *model.Snapshot, expectedRevision int64) (int64, error) {
	if snap == nil {
		return 0, invalid("snapshot", "is required")
	}
	if err := checkSnapshot(snap); err != nil {
		return 0, err
	}

	var revision int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		state, err := s.snapshotRepo.State(txCtx)
		if err != nil {
			return err
		}
		if state.Revision != expectedRevision {
			return fmt.Errorf("%w: expected %d, found %d", repository.ErrRevisionConflict, expectedRevision, state.Revision)
		}
		if err := s.snapshotRepo.Replace(txCtx, snap); err != nil {
			return fmt.Errorf("failed to replace ledger state: %w", err)
		}
		revision = state.Revision + 1
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionImportSnapshot, "", "", map[string]interface{}{
			"documents":       len(snap.Documents),
			"remote_revision": snap.Revision,
		})
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("snapshot imported",
		zap.Int("documents", len(snap.Documents)),
		zap.Int64("revision", revision),
	)
	return revision, nil
}

// checkSnapshot rejects snapshots whose documents break the back-reference
// invariants before anything is deleted.
func checkSnapshot(snap *model.Snapshot) error {
	codes := make(map[string]bool, len(snap.Documents))
	sources := make(map[string]bool, len(snap.Documents))
	returned := make(map[string]bool, len(snap.Documents))
	for _, d := range snap.Documents {
		if codes[d.Code] {
			return fmt.Errorf("%w: %s appears twice in snapshot", ErrDuplicateCode, d.Code)
		}
		codes[d.Code] = true
		if d.SourceID != nil {
			key := d.SourceID.String()
			if sources[key] {
				return fmt.Errorf("%w: %s has two successors in snapshot", ErrAlreadyTransformed, key)
			}
			sources[key] = true
		}
		if d.ReturnOfID != nil {
			key := d.ReturnOfID.String()
			if returned[key] {
				return fmt.Errorf("%w: %s has two returns in snapshot", ErrAlreadyReturned, key)
			}
			returned[key] = true
		}
	}
	// an invoice and the delivery it was issued from are one shipment
	for _, d := range snap.Documents {
		if d.Type == model.DocTypeInvoice && d.SourceID != nil &&
			returned[d.ID.String()] && returned[d.SourceID.String()] {
			return fmt.Errorf("%w: %s and its delivery are both returned in snapshot", ErrAlreadyReturned, d.Code)
		}
	}
	return nil
}

// Seed prepares an empty ledger once. Calling it again is a no-op.
func (s *snapshotService) Seed(ctx context.Context) error {
	state, err := s.snapshotRepo.State(ctx)
	if err != nil {
		return err
	}
	if state.Seeded {
		return nil
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		depots, err := s.depotRepo.List(txCtx)
		if err != nil {
			return err
		}
		if len(depots) == 0 {
			if err := s.depotRepo.Create(txCtx, &model.Depot{Name: DefaultDepotName}); err != nil {
				return fmt.Errorf("failed to create default depot: %w", err)
			}
		}
		if err := s.snapshotRepo.MarkSeeded(txCtx); err != nil {
			return err
		}
		s.log.Info("ledger seeded")
		return nil
	})
}

func (s *snapshotService) State(ctx context.Context) (*model.SyncState, error) {
	state, err := s.snapshotRepo.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return state, nil
}

func (s *snapshotService) MarkReplicated(ctx context.Context, revision int64) error {
	return s.snapshotRepo.MarkReplicated(ctx, revision)
}

// IsConflict reports whether err came from a stale expected revision.
func IsConflict(err error) bool {
	return errors.Is(err, repository.ErrRevisionConflict)
}
