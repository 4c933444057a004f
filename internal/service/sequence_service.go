package service

import (
	"context"
	"fmt"

	"bizledger/internal/clock"
	"bizledger/internal/model"
	"bizledger/internal/repository"
)

// ClientCounterKey is the counter behind CL-NNNNN client codes.
const ClientCounterKey = "clients"

// documentSeqKey orders documents by insertion.
const documentSeqKey = "document_seq"

type SequenceService interface {
	Next(ctx context.Context, channel model.Channel, docType model.DocType, year int) (string, error)
	NextForNow(ctx context.Context, channel model.Channel, docType model.DocType) (string, error)
	NextClientCode(ctx context.Context) (string, error)
}

type sequenceService struct {
	counterRepo repository.CounterRepository
	txManager   repository.TransactionManager
	clock       clock.Clock
}

func NewSequenceService(counterRepo repository.CounterRepository, txManager repository.TransactionManager, clk clock.Clock) SequenceService {
	return &sequenceService{counterRepo: counterRepo, txManager: txManager, clock: clk}
}

// CounterKey is the counter name for one (channel, type, year) sequence.
func CounterKey(channel model.Channel, docType model.DocType, year int) string {
	return fmt.Sprintf("%s:%s:%04d", channel, docType, year)
}

// FormatDocumentCode renders {prefix}-{TYPE}{yy}-{NNNNN}.
func FormatDocumentCode(prefix string, docType model.DocType, year int, n int64) string {
	return fmt.Sprintf("%s-%s%02d-%05d", prefix, docType, year%100, n)
}

// FormatClientCode renders CL-{NNNNN}.
func FormatClientCode(n int64) string {
	return fmt.Sprintf("CL-%05d", n)
}

func (s *sequenceService) Next(ctx context.Context, channel model.Channel, docType model.DocType, year int) (string, error) {
	policy, ok := channel.Policy()
	if !ok {
		return "", invalid("channel", fmt.Sprintf("unknown channel %q", channel))
	}
	if !docType.Valid() {
		return "", invalid("type", fmt.Sprintf("unknown document type %q", docType))
	}
	if year < 0 {
		return "", invalid("year", "must not be negative")
	}

	n, err := s.increment(ctx, CounterKey(channel, docType, year))
	if err != nil {
		return "", err
	}
	return FormatDocumentCode(policy.Prefix, docType, year, n), nil
}

func (s *sequenceService) NextForNow(ctx context.Context, channel model.Channel, docType model.DocType) (string, error) {
	return s.Next(ctx, channel, docType, s.clock.Now().Year())
}

func (s *sequenceService) NextClientCode(ctx context.Context) (string, error) {
	n, err := s.increment(ctx, ClientCounterKey)
	if err != nil {
		return "", err
	}
	return FormatClientCode(n), nil
}

// increment joins the caller's transaction when there is one, so a code is
// only consumed if the document holding it commits.
func (s *sequenceService) increment(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		n, err = s.counterRepo.Increment(txCtx, key)
		if err != nil {
			return fmt.Errorf("failed to increment counter %s: %w", key, err)
		}
		return nil
	})
	return n, err
}
