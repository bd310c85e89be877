package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).With(logger.RequestID("rid-1")))

	Log(ctx, EventReset, SourceHTTP, logger.Int("pending", 3))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, EventReset, e.Message)
	assert.Equal(t, "audit", e.LoggerName)
	fields := e.ContextMap()
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "http", fields["source"])
	assert.EqualValues(t, 3, fields["pending"])
}
