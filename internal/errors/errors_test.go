package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderPreservesWrappedError(t *testing.T) {
	base := fmt.Errorf("fetch failed: %w", io.ErrUnexpectedEOF)

	err := New(base).
		Component("spaces").
		Category(CategoryImageFetch).
		Context("bucket", "tree-imagery").
		Build()

	var ee *EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "spaces", ee.Component)
	assert.Equal(t, CategoryImageFetch, ee.Category)
	assert.Equal(t, "tree-imagery", ee.Context["bucket"])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, base.Error(), err.Error())
}

func TestIsMatchesByCategory(t *testing.T) {
	a := New(fmt.Errorf("timeout")).Category(CategoryNetwork).Build()
	b := New(fmt.Errorf("connection refused")).Category(CategoryNetwork).Build()
	c := New(fmt.Errorf("bad box")).Category(CategoryValidation).Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestUnknownComponentDefault(t *testing.T) {
	err := New(fmt.Errorf("boom")).Build()

	var ee *EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestContextCopyIsIsolated(t *testing.T) {
	err := New(fmt.Errorf("boom")).Context("k", "v").Build()

	var ee *EnhancedError
	require.ErrorAs(t, err, &ee)

	cp := ee.GetContext()
	cp["k"] = "mutated"
	assert.Equal(t, "v", ee.Context["k"])
}
