package service

import (
	"context"
	"testing"
	"time"

	"bizledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInvoice creates an untaxed internal invoice whose payable total is amount.
func newInvoice(t *testing.T, env *testEnv, amount string) uuid.UUID {
	t.Helper()
	product := env.product(t, "SKU-"+uuid.NewString()[:8], amount)
	doc, err := env.documents.Create(context.Background(), "tester", CreateDocumentRequest{
		Type:    "FA",
		Channel: "internal",
		Lines:   []DocumentLineRequest{{ProductID: product.String(), Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, amount, doc.Totals.Payable)
	return uuid.MustParse(doc.ID)
}

func pay(amount, method string) RecordPaymentRequest {
	return RecordPaymentRequest{Amount: decimal.RequireFromString(amount), Method: method}
}

func TestPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := newInvoice(t, env, "200.00")

	_, err := env.payments.Record(ctx, "tester", invoice, pay("150.00", model.MethodCash))
	require.NoError(t, err)

	doc, err := env.documents.Get(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartial, doc.PaymentStatus)
	assert.Equal(t, "150.00", doc.TotalPaid)

	_, err = env.payments.Record(ctx, "tester", invoice, pay("50.00", model.MethodTransfer))
	require.NoError(t, err)

	doc, err = env.documents.Get(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, doc.PaymentStatus)
	assert.Equal(t, "200.00", doc.TotalPaid)

	_, err = env.payments.Record(ctx, "tester", invoice, pay("0.01", model.MethodCash))
	assert.ErrorIs(t, err, ErrPaymentExceedsBalance)

	payments, err := env.payments.List(ctx, invoice)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	summary, err := env.payments.Summary(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, PaymentSummary{
		DocumentID: invoice.String(),
		Payable:    "200.00",
		Paid:       "200.00",
		Remaining:  "0.00",
		Status:     model.PaymentPaid,
	}, summary)
	assert.Contains(t, env.events.names(), EventPaymentRecorded)
}

func TestPaymentTaxedInvoiceSettlesExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	depot := env.depot(t, "North")
	product := env.product(t, "SKU-1", "200.00")

	quote := env.salesQuote(t, depot, product, 1, "200.00")
	invoice := uuid.MustParse(env.chain(t, quote, 3)[2].ID)

	_, err := env.payments.Record(ctx, "tester", invoice, pay("150.00", model.MethodCard))
	require.NoError(t, err)
	_, err = env.payments.Record(ctx, "tester", invoice, pay("50.00", model.MethodCard))
	require.NoError(t, err)

	summary, err := env.payments.Summary(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, summary.Status)
}

func TestPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := newInvoice(t, env, "100.00")
	depot := env.depot(t, "North")
	product := env.product(t, "SKU-1", "10")
	quote := env.salesQuote(t, depot, product, 1, "10")

	tests := []struct {
		name    string
		docID   uuid.UUID
		req     RecordPaymentRequest
		wantErr error
	}{
		{"zero amount", invoice, pay("0", model.MethodCash), ErrInvalidPaymentAmount},
		{"negative amount", invoice, pay("-5", model.MethodCash), ErrInvalidPaymentAmount},
		{"exceeds balance", invoice, pay("100.01", model.MethodCash), ErrPaymentExceedsBalance},
		{"check without number", invoice, pay("10", model.MethodCheck), ErrCheckNumberRequired},
		{"unknown method", invoice, pay("10", "barter"), ErrValidation},
		{"not an invoice", uuid.MustParse(quote.ID), pay("10", model.MethodCash), ErrNotAnInvoice},
		{"missing document", uuid.New(), pay("10", model.MethodCash), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.Record(ctx, "tester", tt.docID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr != ErrNotFound {
				assert.Equal(t, KindValidation, KindOf(err))
			}
		})
	}

	payments, err := env.payments.List(ctx, invoice)
	require.NoError(t, err)
	assert.Empty(t, payments)

	doc, err := env.documents.Get(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, doc.PaymentStatus)
}

func TestPaymentCheckWithNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := newInvoice(t, env, "80.00")
	paidAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	req := pay("30", model.MethodCheck)
	req.CheckNumber = "CHK-881"
	req.PaidAt = &paidAt
	res, err := env.payments.Record(ctx, "tester", invoice, req)
	require.NoError(t, err)

	assert.Equal(t, "30.00", res.Amount)
	assert.Equal(t, "CHK-881", res.CheckNumber)
	assert.Equal(t, "2024-02-01T00:00:00Z", res.PaidAt)
}

func TestPaymentStatusFor(t *testing.T) {
	payable := decimal.RequireFromString("200")
	tests := []struct {
		paid string
		want string
	}{
		{"0", model.PaymentUnpaid},
		{"0.01", model.PaymentPartial},
		{"199.99", model.PaymentPartial},
		{"200", model.PaymentPaid},
		{"250", model.PaymentPaid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PaymentStatusFor(decimal.RequireFromString(tt.paid), payable), tt.paid)
	}
}
