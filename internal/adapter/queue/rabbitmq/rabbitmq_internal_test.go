package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

func TestPriorityFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint8(1), priorityFor(domain.PriorityLow))
	assert.Equal(t, uint8(5), priorityFor(domain.PriorityNormal))
	assert.Equal(t, uint8(10), priorityFor(domain.PriorityHigh))
	// Unset priority publishes as normal.
	assert.Equal(t, uint8(5), priorityFor(""))
}

func TestTyped_DispatchesDecodedMessage(t *testing.T) {
	t.Parallel()
	req := domain.AnalysisRequest{
		Envelope:  domain.NewEnvelope(domain.EventPdfAnalysisRequest, "item-1"),
		ObjectKey: "pdfs/item-1.pdf",
	}
	body, err := json.Marshal(&req)
	require.NoError(t, err)

	var got domain.AnalysisRequest
	h := Typed[domain.AnalysisRequest](domain.EventPdfAnalysisRequest, func(_ context.Context, msg domain.AnalysisRequest) error {
		got = msg
		return nil
	})
	require.NoError(t, h(context.Background(), body))
	assert.Equal(t, "item-1", got.ItemID)
	assert.Equal(t, "pdfs/item-1.pdf", got.ObjectKey)
}

func TestTyped_PoisonCases(t *testing.T) {
	t.Parallel()
	h := Typed[domain.AnalysisRequest](domain.EventPdfAnalysisRequest, func(_ context.Context, _ domain.AnalysisRequest) error {
		t.Fatal("handler must not run for poison messages")
		return nil
	})

	// Unparseable JSON.
	err := h(context.Background(), []byte(`{not json`))
	require.ErrorIs(t, err, domain.ErrPoisonMessage)

	// Unknown event type.
	err = h(context.Background(), []byte(`{"messageId":"m","timestamp":1,"eventType":"Chunking","itemId":"i"}`))
	require.ErrorIs(t, err, domain.ErrPoisonMessage)

	// Valid type on the wrong queue.
	err = h(context.Background(), []byte(`{"messageId":"m","timestamp":1,"eventType":"PdfMergingRequest","itemId":"i"}`))
	require.ErrorIs(t, err, domain.ErrPoisonMessage)

	// Missing item ID.
	err = h(context.Background(), []byte(`{"messageId":"m","timestamp":1,"eventType":"PdfAnalysisRequest"}`))
	require.ErrorIs(t, err, domain.ErrPoisonMessage)
}

func TestTyped_HandlerErrorPropagates(t *testing.T) {
	t.Parallel()
	req := domain.AnalysisRequest{Envelope: domain.NewEnvelope(domain.EventPdfAnalysisRequest, "item-1")}
	body, err := json.Marshal(&req)
	require.NoError(t, err)

	h := Typed[domain.AnalysisRequest](domain.EventPdfAnalysisRequest, func(_ context.Context, _ domain.AnalysisRequest) error {
		return domain.ErrInternal
	})
	require.ErrorIs(t, h(context.Background(), body), domain.ErrInternal)
}
