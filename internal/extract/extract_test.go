package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/apperr"
)

func TestExtractPlainText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract("text/plain", []byte("hamster care\nguide"))
	require.NoError(t, err)
	assert.Equal(t, "hamster care\nguide", text)

	// Parameters on the media type are ignored.
	text, err = r.Extract("text/plain; charset=utf-8", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestExtractUnknownTextSubtypeFallsBack(t *testing.T) {
	r := NewRegistry()
	text, err := r.Extract("text/x-log", []byte("line one"))
	require.NoError(t, err)
	assert.Equal(t, "line one", text)
}

func TestExtractUnsupportedType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract("application/pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.False(t, r.Supported("application/pdf"))
	assert.True(t, r.Supported("text/markdown"))
}

func TestExtractInvalidUTF8(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract("text/plain", []byte{0xff, 0xfe, 0x01})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestExtractHTML(t *testing.T) {
	r := NewRegistry()
	html := `<html><head><style>body { color: red }</style>
<script>alert("x")</script></head>
<body><h1>Hamster Guide</h1><p>Feed &amp; water daily.</p></body></html>`

	text, err := r.Extract("text/html", []byte(html))
	require.NoError(t, err)
	assert.Contains(t, text, "Hamster Guide")
	assert.Contains(t, text, "Feed & water daily.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<p>")
}
