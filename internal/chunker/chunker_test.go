package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/apperr"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: 0, overlap: 0},
		{name: "explicit", size: 512, overlap: 64},
		{name: "negative size", size: -1, wantErr: true},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := New(0, 0)
	require.NoError(t, err)

	for _, input := range []string{"", "   ", "\n\t\n"} {
		chunks, err := c.Split(input)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplitShortInput(t *testing.T) {
	c, err := New(0, 0)
	require.NoError(t, err)

	chunks, err := c.Split("hamsters are crepuscular rodents")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Order)
	assert.Equal(t, "hamsters are crepuscular rodents", chunks[0].Text)
}

func TestSplitOrderContiguous(t *testing.T) {
	c, err := New(200, 20)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("the quick brown fox jumps over the lazy dog. ")
	}
	chunks, err := c.Split(b.String())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Order)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		assert.LessOrEqual(t, len(ch.Text), 250, "chunk %d exceeds the window size", i)
	}
}

func TestSplitCoversAllContent(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	sentinel := "zanzibar"
	text := strings.Repeat("filler words here. ", 30) + sentinel + strings.Repeat(" trailing content.", 10)
	chunks, err := c.Split(text)
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Text, sentinel) {
			found = true
		}
	}
	assert.True(t, found, "sentinel token lost during splitting")
}
