// Package whttp fetches target pages.
package whttp

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:83.0) Gecko/20100101 Firefox/83.0"
	DefaultTimeout   = 30 * time.Second
	DefaultRetries   = 2
	DefaultMaxBytes  = 5 << 20
)

// FetchError reports a page that could not be fetched as HTML.
type FetchError struct {
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299):
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: unexpected content type %q", e.URL, e.ContentType)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Title      string
	Body       string
}

type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	MaxBytes  int64
	Proxy     string
}

// Fetcher downloads pages with retries on transient failures.
type Fetcher struct {
	client    *retryablehttp.Client
	userAgent string
	maxBytes  int64
}

func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	// Hand the last response back instead of a generic "giving up" error so
	// the status code can be reported.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = opts.Timeout

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy URL %q", opts.Proxy)
		}
		client.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Fetcher{client: client, userAgent: opts.UserAgent, maxBytes: opts.MaxBytes}, nil
}

// Fetch GETs rawURL. Non-2xx responses, non-HTML content and transport
// failures are reported as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Cache-Control", "no-transform")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	ctype := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, ContentType: ctype}
	}
	if !isHTML(ctype) {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, ContentType: ctype}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, ContentType: ctype, Err: err}
	}

	page := &Page{URL: rawURL, StatusCode: resp.StatusCode, Body: string(body)}
	page.Title = pageTitle(page.Body)
	return page, nil
}

// isHTML accepts an empty content type, since many origins omit it.
func isHTML(ctype string) bool {
	if ctype == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// pageTitle returns the text of the document's <title>, whitespace
// collapsed. Tokenizing stops at the first <title> or at <body>, so a
// <title> inside inline SVG is never picked up.
func pageTitle(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "body":
				return ""
			case "title":
				if z.Next() != html.TextToken {
					return ""
				}
				return strings.ToValidUTF8(strings.Join(strings.Fields(string(z.Text())), " "), "")
			}
		}
	}
}
