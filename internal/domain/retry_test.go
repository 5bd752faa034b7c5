package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

func TestDecideRetry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		kind       domain.ErrorKind
		want       domain.RetryDecision
	}{
		{"transient first attempt", 0, 3, domain.KindTransient, domain.RetryPublish},
		{"transient last retry", 2, 3, domain.KindTransient, domain.RetryPublish},
		{"transient exhausted", 3, 3, domain.KindTransient, domain.PublishFailed},
		{"transient beyond bound", 5, 3, domain.KindTransient, domain.PublishFailed},
		{"bad input retried once", 0, 3, domain.KindBadInput, domain.RetryPublish},
		{"bad input after race retry", 1, 3, domain.KindBadInput, domain.PublishFailed},
		{"poison never retried", 0, 3, domain.KindPoison, domain.RejectToDLQ},
		{"fatal rejected", 0, 3, domain.KindFatal, domain.RejectToDLQ},
		{"zero max falls back to default", 2, 0, domain.KindTransient, domain.RetryPublish},
		{"zero max exhausted at default", 3, 0, domain.KindTransient, domain.PublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.DecideRetry(tt.retryCount, tt.maxRetries, tt.kind))
		})
	}
}

func TestDecideRetry_MonotoneChain(t *testing.T) {
	t.Parallel()
	// Along a causal retry chain the count only grows, and the chain
	// continues only while it is strictly below maxRetries.
	count := 0
	for domain.DecideRetry(count, 3, domain.KindTransient) == domain.RetryPublish {
		count++
		assert.LessOrEqual(t, count, 3)
	}
	assert.Equal(t, 3, count)
}
