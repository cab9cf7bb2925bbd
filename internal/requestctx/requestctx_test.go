package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestMetadata(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetClientIP(ctx))

	ctx = WithClientIP(WithRequestID(ctx, "req-1"), "10.0.0.1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "10.0.0.1", GetClientIP(ctx))
}
