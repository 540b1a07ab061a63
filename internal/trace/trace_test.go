package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithID(t *testing.T) {
	ctx := WithID(context.Background(), "abc")
	assert.Equal(t, "abc", ID(ctx))
	assert.Empty(t, ID(context.Background()))
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, ID(ctx))

	again, same := Ensure(ctx)
	assert.Equal(t, id, same)
	assert.Equal(t, ctx, again)
}
