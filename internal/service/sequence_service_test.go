package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"bizledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceNextFormat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		channel model.Channel
		docType model.DocType
		year    int
		want    string
	}{
		{model.ChannelSales, model.DocTypeQuote, 2024, "V-DV24-00001"},
		{model.ChannelSales, model.DocTypeQuote, 2024, "V-DV24-00002"},
		{model.ChannelPurchase, model.DocTypeOrder, 2024, "A-BC24-00001"},
		{model.ChannelInternal, model.DocTypeInvoice, 2024, "I-FA24-00001"},
		{model.ChannelSales, model.DocTypeQuote, 2025, "V-DV25-00001"},
		{model.ChannelSales, model.DocTypeReturn, 2009, "V-BR09-00001"},
	}

	for _, tt := range tests {
		code, err := env.sequence.Next(ctx, tt.channel, tt.docType, tt.year)
		require.NoError(t, err)
		assert.Equal(t, tt.want, code)
	}
}

func TestSequenceContiguousAndIncreasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 25
	for i := 1; i <= n; i++ {
		code, err := env.sequence.Next(ctx, model.ChannelPurchase, model.DocTypeDelivery, 2024)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("A-BL24-%05d", i), code)
	}
}

func TestSequenceConcurrentCallsNeverCollide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 20
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := env.sequence.Next(ctx, model.ChannelSales, model.DocTypeInvoice, 2024)
			assert.NoError(t, err)
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen[fmt.Sprintf("V-FA24-%05d", n)])
}

func TestSequenceNextForNowUsesClockYear(t *testing.T) {
	env := newTestEnv(t)

	code, err := env.sequence.NextForNow(context.Background(), model.ChannelSales, model.DocTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, "V-BC24-00001", code)
}

func TestSequenceClientCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.sequence.NextClientCode(ctx)
	require.NoError(t, err)
	second, err := env.sequence.NextClientCode(ctx)
	require.NoError(t, err)

	assert.Equal(t, "CL-00001", first)
	assert.Equal(t, "CL-00002", second)
}

func TestSequenceRejectsUnknownKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sequence.Next(ctx, model.Channel("wholesale"), model.DocTypeQuote, 2024)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.sequence.Next(ctx, model.ChannelSales, model.DocType("XX"), 2024)
	assert.ErrorIs(t, err, ErrValidation)
}
