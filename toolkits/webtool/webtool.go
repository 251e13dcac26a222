// Package webtool provides a tool that fetches a web page and converts the
// HTML body to Markdown for consumption by an LLM.
package webtool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/skosovsky/dispatchy"
)

const (
	// DefaultTimeout bounds the whole fetch when the call does not set one.
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps how much of the response body is read.
	MaxBodySize = 5 * 1024 * 1024
	// DefaultUserAgent identifies the fetcher to remote servers.
	DefaultUserAgent = "dispatchy-webfetch/1.0"

	maxRedirects = 10
)

// Args identifies the page to fetch.
type Args struct {
	URL            string `json:"url" description:"Page URL. A missing scheme defaults to https."`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" description:"Request timeout in seconds (default 30)"`
}

// Result carries the fetched page as Markdown.
type Result struct {
	URL      string `json:"url" description:"Final URL after redirects"`
	Markdown string `json:"markdown" description:"Page content converted to Markdown"`
}

var client = &http.Client{
	CheckRedirect: func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	},
}

// Fetch retrieves the page at args.URL and converts the body to Markdown.
// URL problems (empty, bad scheme, 4xx status) are client errors the model
// can fix; network and server failures stay opaque.
func Fetch(ctx context.Context, args Args) (Result, error) {
	rawURL := strings.TrimSpace(args.URL)
	if rawURL == "" {
		return Result{}, &dispatchy.ClientError{Reason: "url must not be empty"}
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return Result{}, &dispatchy.ClientError{
			Reason: fmt.Sprintf("unsupported URL scheme in %q, use http or https", args.URL),
		}
	}

	timeout := DefaultTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, &dispatchy.ClientError{Reason: "invalid url: " + err.Error()}
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return Result{}, &dispatchy.ClientError{
				Reason: fmt.Sprintf("fetch of %s failed with status %d", rawURL, resp.StatusCode),
			}
		}
		return Result{}, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	// Read one byte past the cap to tell "exactly at the cap" from "over it".
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return Result{}, fmt.Errorf("read body from %s: %w", rawURL, err)
	}
	if len(body) > MaxBodySize {
		return Result{}, fmt.Errorf("response from %s exceeds maximum size of %d bytes", rawURL, MaxBodySize)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return Result{}, fmt.Errorf("convert html from %s: %w", rawURL, err)
	}

	return Result{URL: resp.Request.URL.String(), Markdown: markdown}, nil
}

// NewWebFetchTool builds the web_fetch tool.
func NewWebFetchTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool(
		"web_fetch",
		"Fetches a web page over HTTP(S) and returns its content converted to Markdown.",
		Fetch,
		dispatchy.WithTimeout(DefaultTimeout+15*time.Second),
		dispatchy.WithTags("web"),
	)
}

// Register builds the toolkit's tools and registers them on reg.
func Register(reg *dispatchy.Registry) error {
	t, err := NewWebFetchTool()
	if err != nil {
		return err
	}
	return reg.Register(t)
}
