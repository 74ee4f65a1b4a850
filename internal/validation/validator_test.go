package validation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/domain"
)

func baseRequest() Request {
	return Request{
		ID:        domain.RequestID(uuid.New()),
		Timestamp: time.Now(),
		Payload:   []byte(`{"amount":10}`),
		Origin:    Origin{Source: "api", Address: "192.168.1.5"},
	}
}

func TestPayloadValidator(t *testing.T) {
	v := PayloadValidator{MaxBytes: 64}
	ctx := context.Background()

	t.Run("valid json passes with full score", func(t *testing.T) {
		out, err := v.Validate(ctx, baseRequest())
		require.NoError(t, err)
		assert.True(t, out.Passed)
		assert.Equal(t, 1.0, out.Score)
	})

	t.Run("empty payload fails", func(t *testing.T) {
		req := baseRequest()
		req.Payload = nil
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.False(t, out.Passed)
	})

	t.Run("oversized payload fails", func(t *testing.T) {
		req := baseRequest()
		req.Payload = []byte(`{"k":"` + strings.Repeat("a", 128) + `"}`)
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.False(t, out.Passed)
	})

	t.Run("non-json payload fails", func(t *testing.T) {
		req := baseRequest()
		req.Payload = []byte("not json")
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.False(t, out.Passed)
	})

	t.Run("large but legal payload passes with reduced score", func(t *testing.T) {
		req := baseRequest()
		req.Payload = []byte(`{"k":"` + strings.Repeat("a", 40) + `"}`)
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.True(t, out.Passed)
		assert.Equal(t, 0.9, out.Score)
	})
}

func TestOriginValidator(t *testing.T) {
	v := OriginValidator{}
	ctx := context.Background()

	t.Run("ip address scores full", func(t *testing.T) {
		out, err := v.Validate(ctx, baseRequest())
		require.NoError(t, err)
		assert.True(t, out.Passed)
		assert.Equal(t, 1.0, out.Score)
	})

	t.Run("missing source fails", func(t *testing.T) {
		req := baseRequest()
		req.Origin.Source = ""
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.False(t, out.Passed)
	})

	t.Run("unparseable address passes with reduced score", func(t *testing.T) {
		req := baseRequest()
		req.Origin.Address = "???"
		out, err := v.Validate(ctx, req)
		require.NoError(t, err)
		assert.True(t, out.Passed)
		assert.Equal(t, 0.8, out.Score)
	})
}

func TestIdentityValidator(t *testing.T) {
	v := IdentityValidator{}
	ctx := context.Background()

	out, err := v.Validate(ctx, baseRequest())
	require.NoError(t, err)
	assert.True(t, out.Passed)

	req := baseRequest()
	req.ID = domain.RequestID(uuid.Nil)
	out, err = v.Validate(ctx, req)
	require.NoError(t, err)
	assert.False(t, out.Passed)

	req = baseRequest()
	req.Timestamp = time.Time{}
	out, err = v.Validate(ctx, req)
	require.NoError(t, err)
	assert.False(t, out.Passed)
}
