package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"github.com/dropDatabas3/gateway/internal/rpc"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	ctx := rpc.WithRequestID(context.Background(), "rid-1")
	Log(ctx, UserRegistered, logger.UserID(3), logger.Email("ann@example.com"))
	Log(context.Background(), ContributionOrphan, logger.ContributionID(9))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "audit", first.LoggerName)
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	m := first.ContextMap()
	assert.Equal(t, UserRegistered, m["event"])
	assert.Equal(t, "rid-1", m["request_id"])
	assert.Equal(t, "a…@e….com", m["email"])

	second := entries[1]
	assert.Equal(t, zapcore.ErrorLevel, second.Level)
	_, hasRID := second.ContextMap()["request_id"]
	assert.False(t, hasRID)
}
