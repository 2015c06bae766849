package spanlogger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestSpanLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogfmtLogger(&buf)

	sp, ctx := New(context.Background(), logger, "Test", "plan", "distinct")
	defer sp.End()

	require.NoError(t, sp.Log("msg", "hello"))
	require.Equal(t, "method=Test plan=distinct msg=hello\n", buf.String())

	buf.Reset()
	require.NoError(t, FromContext(ctx, log.NewNopLogger()).Log("msg", "from context"))
	require.Equal(t, "msg=\"from context\"\n", buf.String())
}

func TestFromContext_Fallback(t *testing.T) {
	var buf bytes.Buffer
	sp := FromContext(context.Background(), log.NewLogfmtLogger(&buf))

	require.NoError(t, sp.Log("msg", "fallback"))
	require.Equal(t, "msg=fallback\n", buf.String())
}

func TestError(t *testing.T) {
	sp, _ := New(context.Background(), log.NewNopLogger(), "Test")
	defer sp.End()

	err := errors.New("boom")
	require.Same(t, err, sp.Error(err))
	require.NoError(t, sp.Error(nil))
}

func TestAttributes(t *testing.T) {
	attrs := attributes([]interface{}{"s", "x", "b", true, "i", 3, "f", 1.5, "err", errors.New("e"), "dangling"})
	require.Len(t, attrs, 5)
	require.Equal(t, "x", attrs[0].Value.AsString())
	require.True(t, attrs[1].Value.AsBool())
	require.Equal(t, int64(3), attrs[2].Value.AsInt64())
	require.Equal(t, 1.5, attrs[3].Value.AsFloat64())
	require.Equal(t, "e", attrs[4].Value.AsString())
}
