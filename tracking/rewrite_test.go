package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRewriter(t *testing.T) *Rewriter {
	t.Helper()

	codec, err := NewCodec("super-secret")
	require.NoError(t, err)

	return NewRewriter(codec, "https://track.example.com/")
}

func TestRewriterInjectsPixelBeforeBody(t *testing.T) {
	r := testRewriter(t)

	html, err := r.Decorate("<html><body><p>Hi</p></body></html>", 1, "a@example.com")
	require.NoError(t, err)

	pixelAt := strings.Index(html, "/tracking/pixel?token=")
	bodyAt := strings.Index(html, "</body>")
	require.Greater(t, pixelAt, 0)
	require.Greater(t, bodyAt, 0)
	assert.Less(t, pixelAt, bodyAt)
}

func TestRewriterAppendsPixelWithoutBodyTag(t *testing.T) {
	r := testRewriter(t)

	html, err := r.Decorate("<p>Hi</p>", 1, "a@example.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(html, "<p>Hi</p>"))
	assert.Contains(t, html, "/tracking/pixel?token=")
}

func TestRewriterRewritesLinks(t *testing.T) {
	r := testRewriter(t)

	html, err := r.Decorate(
		`<a href="https://shop.example.com/promo?x=1">Shop</a> <a href="http://other.example.com">Other</a>`,
		1, "a@example.com")
	require.NoError(t, err)

	assert.NotContains(t, html, `href="https://shop.example.com`)
	assert.NotContains(t, html, `href="http://other.example.com`)
	assert.Equal(t, 2, strings.Count(html, "https://track.example.com/tracking/click?token="))
	assert.Contains(t, html, "url=https%3A%2F%2Fshop.example.com%2Fpromo%3Fx%3D1")
}

func TestRewriterLeavesRelativeAndMailtoLinks(t *testing.T) {
	r := testRewriter(t)

	html, err := r.Decorate(
		`<a href="/unsubscribe">Unsubscribe</a> <a href="mailto:help@example.com">Help</a>`,
		1, "a@example.com")
	require.NoError(t, err)

	assert.Contains(t, html, `href="/unsubscribe"`)
	assert.Contains(t, html, `href="mailto:help@example.com"`)
}

func TestRewriterSkipsAlreadyRewrittenLinks(t *testing.T) {
	r := testRewriter(t)

	once, err := r.Decorate(`<a href="https://shop.example.com">Shop</a>`, 1, "a@example.com")
	require.NoError(t, err)

	twice, err := r.Decorate(once, 1, "a@example.com")
	require.NoError(t, err)

	assert.Equal(t,
		strings.Count(once, "/tracking/click?token="),
		strings.Count(twice, "/tracking/click?token="))
}
