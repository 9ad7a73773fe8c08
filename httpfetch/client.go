// Package httpfetch is the HTTP boundary of the query cache: every query and
// mutation ultimately issues a JSON request through a Client. Success is any
// 2xx whose body becomes the opaque data payload; a non-2xx response becomes
// an *APIError carrying the server's message.
package httpfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sirupsen/logrus"
	"resty.dev/v3"

	"github.com/cobertis/querycache"
)

// Options holds configuration for a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// CookieJar carries the session cookie across requests
	// ("credentials: include" semantics). A fresh in-memory jar is created
	// when nil.
	CookieJar http.CookieJar
	Logger    *logrus.Logger
}

// Client wraps a resty client configured for JSON round trips.
type Client struct {
	rc  *resty.Client
	log *logrus.Logger
}

// NewClient creates a Client. Retry policy is deliberately not configured
// here: the cache retries idempotent query fetches itself and mutations must
// never be retried.
func NewClient(opts Options) (*Client, error) {
	jar := opts.CookieJar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpfetch: failed to create cookie jar: %w", err)
		}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetCookieJar(jar)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{rc: rc, log: log}, nil
}

// Close releases the underlying transport resources.
func (c *Client) Close() error {
	return c.rc.Close()
}

// Fetcher adapts the client into a querycache.Fetcher using the given
// resolver, issuing a GET per fetch.
func (c *Client) Fetcher(resolve Resolver) querycache.Fetcher {
	return func(ctx context.Context, key querycache.Key) (interface{}, error) {
		req, err := resolve(key)
		if err != nil {
			return nil, err
		}
		r := c.rc.R().SetContext(ctx)
		if len(req.Query) > 0 {
			r.SetQueryParamsFromValues(req.Query)
		}
		resp, err := r.Get(req.Path)
		return c.decode(resp, err, http.MethodGet, req.Path)
	}
}

// GetJSON issues a GET and returns the parsed body.
func (c *Client) GetJSON(ctx context.Context, path string) (interface{}, error) {
	resp, err := c.rc.R().SetContext(ctx).Get(path)
	return c.decode(resp, err, http.MethodGet, path)
}

// PostJSON issues a POST with a JSON body and returns the parsed response.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}) (interface{}, error) {
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post(path)
	return c.decode(resp, err, http.MethodPost, path)
}

// PutJSON issues a PUT with a JSON body and returns the parsed response.
func (c *Client) PutJSON(ctx context.Context, path string, body interface{}) (interface{}, error) {
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Put(path)
	return c.decode(resp, err, http.MethodPut, path)
}

// PatchJSON issues a PATCH with a JSON body and returns the parsed response.
func (c *Client) PatchJSON(ctx context.Context, path string, body interface{}) (interface{}, error) {
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Patch(path)
	return c.decode(resp, err, http.MethodPatch, path)
}

// DeleteJSON issues a DELETE and returns the parsed response.
func (c *Client) DeleteJSON(ctx context.Context, path string) (interface{}, error) {
	resp, err := c.rc.R().SetContext(ctx).Delete(path)
	return c.decode(resp, err, http.MethodDelete, path)
}

// decode turns a resty response into the opaque data payload or an error.
func (c *Client) decode(resp *resty.Response, err error, method, path string) (interface{}, error) {
	if err != nil {
		c.log.WithFields(logrus.Fields{"method": method, "path": path}).
			WithError(err).Warn("http request failed")
		return nil, fmt.Errorf("httpfetch: %s %s: %w", method, path, err)
	}
	body := resp.Bytes()
	if resp.IsError() {
		apiErr := apiErrorFrom(resp.StatusCode(), body)
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode(),
		}).Warn(apiErr.Message)
		return nil, apiErr
	}
	if len(body) == 0 {
		return nil, nil
	}
	var data interface{}
	if uerr := json.Unmarshal(body, &data); uerr != nil {
		return nil, fmt.Errorf("httpfetch: %s %s: invalid JSON response: %w", method, path, uerr)
	}
	return data, nil
}
