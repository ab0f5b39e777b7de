package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	PixelPath = "/tracking/pixel"
	ClickPath = "/tracking/click"
)

var (
	closingBodyRe = regexp.MustCompile(`(?i)</body>`)
	closingHtmlRe = regexp.MustCompile(`(?i)</html>`)
	hrefRe        = regexp.MustCompile(`(?i)href="(https?://[^"]+)"`)
)

// Rewriter decorates outbound HTML with the open pixel and click
// redirects for one (campaign, recipient) pair.
type Rewriter struct {
	codec   *Codec
	baseURL string
}

func NewRewriter(codec *Codec, baseURL string) *Rewriter {
	return &Rewriter{
		codec:   codec,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Decorate rewrites links first, then injects the pixel, so the pixel
// image itself is never routed through the click redirect.
func (r *Rewriter) Decorate(html string, campaignID uint64, email string) (string, error) {
	token, err := r.codec.Encode(campaignID, email)
	if err != nil {
		return "", err
	}

	html = r.rewriteLinks(html, token)

	return r.injectPixel(html, token), nil
}

// injectPixel places a 1x1 image before the closing body tag, falling
// back to the closing html tag, else appends.
func (r *Rewriter) injectPixel(html, token string) string {
	pixel := fmt.Sprintf(`<img src="%s%s?token=%s" width="1" height="1" style="display:none" alt=""/>`,
		r.baseURL, PixelPath, url.QueryEscape(token))

	if loc := closingBodyRe.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + pixel + html[loc[0]:]
	}

	if loc := closingHtmlRe.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + pixel + html[loc[0]:]
	}

	return html + pixel
}

// rewriteLinks routes every absolute http(s) href through the click
// redirect with the original destination carried as a parameter.
func (r *Rewriter) rewriteLinks(html, token string) string {
	return hrefRe.ReplaceAllStringFunc(html, func(match string) string {
		sub := hrefRe.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}

		dest := sub[1]
		if strings.HasPrefix(dest, r.baseURL+ClickPath) {
			return match // already rewritten
		}

		return fmt.Sprintf(`href="%s%s?token=%s&url=%s"`,
			r.baseURL, ClickPath, url.QueryEscape(token), url.QueryEscape(dest))
	})
}
