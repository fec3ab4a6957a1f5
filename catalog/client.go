// Package catalog talks to the Vintage Story mod database.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vintage-mod-manager/compat"
	"vintage-mod-manager/config"
	"vintage-mod-manager/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultRetryWait   = 500 * time.Millisecond
	defaultMaxBodySize = 512 << 20
	maxErrorBody       = 512
	createdLayout      = "2006-01-02 15:04:05"
)

// Client handles communication with the mod database API.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	MaxRetries int
	// RetryWait is the first backoff interval; it grows exponentially.
	RetryWait time.Duration
	// MaxBodySize caps any response body; larger responses fail with
	// ErrNetwork.
	MaxBodySize int64
	Log         *zap.SugaredLogger
	// Now stamps fetched version table rows.
	Now func() time.Time
}

// NewClient creates a client from the loaded settings.
func NewClient(cfg config.Settings) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user agent is not configured")
	}
	if _, err := url.ParseRequestURI(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", cfg.APIURL, err)
	}

	return &Client{
		BaseURL:   strings.TrimRight(cfg.APIURL, "/"),
		UserAgent: cfg.UserAgent,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		MaxRetries:  cfg.MaxRetries,
		RetryWait:   defaultRetryWait,
		MaxBodySize: defaultMaxBodySize,
		Log:         logger.Log,
		Now:         time.Now,
	}, nil
}

func (c *Client) log() *zap.SugaredLogger {
	if c.Log == nil {
		return logger.Log
	}
	return c.Log
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.RetryWait
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = defaultRetryWait
	}
	eb.MaxElapsedTime = 0
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// fetch performs a GET with retries. Network failures, 429 and 5xx are
// retried; any other non-2xx status is final. A 404 maps to ErrNotFound.
func (c *Client) fetch(ctx context.Context, fullURL, accept, target string) ([]byte, error) {
	var body []byte
	attempt := 0
	limit := c.MaxBodySize
	if limit <= 0 {
		limit = defaultMaxBodySize
	}

	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(&ClientError{Kind: ErrNetwork, Target: target, Err: err})
		}
		req.Header.Set("User-Agent", c.UserAgent)
		req.Header.Set("Accept", accept)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return &ClientError{Kind: ErrNetwork, Target: target, Err: fmt.Errorf("failed to execute request: %w", err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
			switch {
			case resp.StatusCode == http.StatusNotFound:
				return backoff.Permanent(&ClientError{Kind: ErrNotFound, Target: target, Err: statusErr})
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				return &ClientError{Kind: ErrNetwork, Target: target, Err: statusErr}
			default:
				return backoff.Permanent(&ClientError{Kind: ErrNetwork, Target: target, Err: statusErr})
			}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return &ClientError{Kind: ErrNetwork, Target: target, Err: fmt.Errorf("read body: %w", err)}
		}
		if int64(len(data)) > limit {
			return backoff.Permanent(&ClientError{Kind: ErrNetwork, Target: target, Err: fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)})
		}
		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log().Debugw("Retrying request", "url", fullURL, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.retryPolicy(ctx), notify); err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			return nil, ce
		}
		// Context cancellation surfaces from the backoff itself.
		return nil, &ClientError{Kind: ErrNetwork, Target: target, Err: err}
	}
	return body, nil
}

// makeRequest fetches path relative to BaseURL and decodes the JSON body
// into target. A body whose statuscode is 404 is ErrNotFound.
func (c *Client) makeRequest(ctx context.Context, path string, query url.Values, target any, name string) error {
	fullURL := c.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	c.log().Debugw("API request", "url", fullURL)

	body, err := c.fetch(ctx, fullURL, "application/json", name)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &ClientError{Kind: ErrDeserialize, Target: name, Err: fmt.Errorf("failed to decode json response: %w", err)}
	}
	if env.StatusCode == "404" {
		return &ClientError{Kind: ErrNotFound, Target: name}
	}

	if err := json.NewDecoder(bytes.NewReader(body)).Decode(target); err != nil {
		return &ClientError{Kind: ErrDeserialize, Target: name, Err: fmt.Errorf("failed to decode json response: %w", err)}
	}
	return nil
}

// FetchModReleases returns every release of a mod, by string id or numeric
// asset id.
func (c *Client) FetchModReleases(ctx context.Context, modID string) ([]compat.ModRelease, error) {
	var res modResponse
	if err := c.makeRequest(ctx, "/api/mod/"+url.PathEscape(modID), nil, &res, modID); err != nil {
		return nil, err
	}
	if res.Mod == nil {
		return nil, &ClientError{Kind: ErrDeserialize, Target: modID, Err: errors.New(`missing "mod" object`)}
	}

	releases := make([]compat.ModRelease, 0, len(res.Mod.Releases))
	for i, r := range res.Mod.Releases {
		rel, err := c.convertRelease(r, modID)
		if err != nil {
			return nil, &ClientError{Kind: ErrDeserialize, Target: modID, Err: fmt.Errorf("release %d: %w", i, err)}
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

func (c *Client) convertRelease(r apiRelease, requested string) (compat.ModRelease, error) {
	if r.ModVersion == "" {
		return compat.ModRelease{}, errors.New("missing modversion")
	}
	if r.MainFile == "" {
		return compat.ModRelease{}, errors.New("missing mainfile")
	}

	id := r.ModIDStr
	if id == "" {
		id = requested
	}
	tags := make([]compat.Tag, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, compat.Tag(t))
	}

	rel := compat.ModRelease{
		ModID:         id,
		Version:       r.ModVersion,
		SupportedTags: compat.NewTagSet(tags...),
		FileURL:       c.resolveURL(r.MainFile),
		FileName:      string(r.FileName),
	}
	if r.Created != "" {
		if t, err := time.Parse(createdLayout, r.Created); err == nil {
			rel.Created = t
		} else {
			c.log().Debugw("Unparseable release date", "mod", id, "created", r.Created)
		}
	}
	return rel, nil
}

// FetchGameVersions returns the catalog's game version table. Each version
// name is both the range and the tag; names that are not versions are
// skipped.
func (c *Client) FetchGameVersions(ctx context.Context) ([]compat.Entry, error) {
	var res gameVersionsResponse
	if err := c.makeRequest(ctx, "/api/gameversions", nil, &res, "gameversions"); err != nil {
		return nil, err
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	entries := make([]compat.Entry, 0, len(res.GameVersions))
	for _, gv := range res.GameVersions {
		e, err := compat.NewEntry(gv.Name, compat.Tag(gv.Name), now)
		if err != nil {
			c.log().Warnw("Skipping unrecognised game version", "name", gv.Name, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SearchMods runs a mod search.
func (c *Client) SearchMods(ctx context.Context, q *Query) ([]ModSummary, error) {
	var res searchResponse
	if q == nil {
		q = NewQuery()
	}
	if err := c.makeRequest(ctx, "/api/mods", q.Values(), &res, "search"); err != nil {
		return nil, err
	}
	return res.Mods, nil
}

// Download fetches a mod archive. Relative paths resolve against BaseURL.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	full := c.resolveURL(fileURL)
	c.log().Debugw("Downloading file", "url", full)
	return c.fetch(ctx, full, "application/octet-stream", full)
}

func (c *Client) resolveURL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return c.BaseURL + "/" + strings.TrimLeft(p, "/")
}
