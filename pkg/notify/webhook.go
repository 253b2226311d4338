package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sw33tLie/promowatch/pkg/changes"
	"github.com/sw33tLie/promowatch/pkg/targets"
)

const DefaultTimeout = 10 * time.Second

// Webhook POSTs a JSON document per change result.
type Webhook struct {
	URL     string
	Timeout time.Duration
	client  *retryablehttp.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = 1
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = timeout
	return &Webhook{URL: url, Timeout: timeout, client: client}
}

// Payload renders the webhook body.
func Payload(t targets.Target, r changes.Result, at time.Time) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	set := func(path string, v interface{}) {
		if err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, path, v)
	}
	set("target.name", t.DisplayName())
	set("target.url", t.URL)
	if t.Notes != "" {
		set("target.notes", t.Notes)
	}
	set("summary", r.Summary)
	set("timestamp", at.UTC().Format(time.RFC3339))
	set("counts.added", len(r.Added))
	set("counts.removed", len(r.Removed))
	set("counts.changed", len(r.Changed))
	set("added", r.Added)
	set("removed", r.Removed)
	set("changed", r.Changed)
	set("text", fmt.Sprintf("%s: %s", t.DisplayName(), r.Summary))
	return doc, err
}

func (w *Webhook) Notify(ctx context.Context, t targets.Target, r changes.Result, at time.Time) error {
	body, err := Payload(t, r, at)
	if err != nil {
		return errors.Wrap(err, "build webhook payload")
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "deliver webhook for %s", t.URL)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("webhook for %s returned status %d", t.URL, resp.StatusCode)
	}
	// Chat APIs such as Slack answer 200 with {"ok": false, "error": "..."}.
	if gjson.ValidBytes(respBody) {
		res := gjson.ParseBytes(respBody)
		if ok := res.Get("ok"); ok.Exists() && !ok.Bool() {
			return errors.Newf("webhook for %s rejected: %s", t.URL, res.Get("error").String())
		}
	}
	return nil
}
