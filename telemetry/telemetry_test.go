package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"goa.design/clue/log"
)

func TestNewNoopBundle_NeverPanics(t *testing.T) {
	b := NewNoopBundle()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		b.Logger.Debug(ctx, "debug", "k", "v")
		b.Logger.Info(ctx, "info")
		b.Logger.Warn(ctx, "warn", "k", 1)
		b.Logger.Error(ctx, "error", "err", "boom")
		b.Metrics.IncCounter("c", 1, "tag", "v")
		b.Metrics.RecordGauge("g", 2.5)
		_, span := b.Tracer.Start(ctx, "span")
		span.AddEvent("event")
		span.SetStatus(codes.Ok, "done")
		span.RecordError(nil)
		span.End()
	})
}

func TestKVToFielders_PairsKeysAndValues(t *testing.T) {
	fielders := kvToFielders([]any{"a", 1, "b", "two"})
	require.Len(t, fielders, 2)
	kv0, ok := fielders[0].(log.KV)
	assert.True(t, ok)
	assert.Equal(t, "a", kv0.K)
	assert.Equal(t, 1, kv0.V)
}

func TestKVToFielders_SkipsNonStringKeys(t *testing.T) {
	fielders := kvToFielders([]any{1, "bad-key-is-skipped", "ok", "value"})
	assert.Len(t, fielders, 1)
}

func TestKVToFielders_OddTrailingKeyPairsWithNil(t *testing.T) {
	fielders := kvToFielders([]any{"trailing"})
	require.Len(t, fielders, 1)
	kv, ok := fielders[0].(log.KV)
	assert.True(t, ok)
	assert.Equal(t, "trailing", kv.K)
	assert.Nil(t, kv.V)
}

func TestTagsToAttrs_PairsTags(t *testing.T) {
	attrs := tagsToAttrs([]string{"env", "prod", "region", "us"})
	assert.Len(t, attrs, 2)
	assert.Equal(t, "env", string(attrs[0].Key))
}

func TestTagsToAttrs_DropsUnpairedTrailingTag(t *testing.T) {
	attrs := tagsToAttrs([]string{"env", "prod", "trailing"})
	assert.Len(t, attrs, 1)
}

func TestToString_HandlesStringAndStringer(t *testing.T) {
	assert.Equal(t, "hi", toString("hi"))
	assert.Equal(t, "Ok", toString(codes.Ok))
	assert.Equal(t, "", toString(42))
}
