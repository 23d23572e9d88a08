// Package hub loads corpus splits from the Hugging Face datasets-server
// HTTP API.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cognicore/refine/pkg/refine/record"
)

// DefaultBaseURL is the public datasets-server endpoint.
const DefaultBaseURL = "https://datasets-server.huggingface.co"

// MaxPageSize is the largest page the rows endpoint serves.
const MaxPageSize = 100

// ErrNotFound is returned for unknown datasets, configs or splits.
var ErrNotFound = errors.New("hub: not found")

// Split names one split of one dataset config.
type Split struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	RPS        float64 // requests per second; <= 0 disables limiting
	PageSize   int
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the datasets-server API. It is safe for concurrent use.
type Client struct {
	base       string
	token      string
	pageSize   int
	maxRetries int
	backoff    time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a client. Zero options select the public endpoint, full pages,
// two retries and no rate limit.
func New(opts Options) *Client {
	c := &Client{
		base:       strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		pageSize:   opts.PageSize,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		http:       opts.HTTPClient,
		logger:     opts.Logger,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if c.pageSize <= 0 || c.pageSize > MaxPageSize {
		c.pageSize = MaxPageSize
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 2
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return c
}

type splitsResponse struct {
	Splits []Split `json:"splits"`
}

type feature struct {
	Index int    `json:"feature_idx"`
	Name  string `json:"name"`
}

type rowsResponse struct {
	Features []feature `json:"features"`
	Rows     []struct {
		Index int                        `json:"row_idx"`
		Row   map[string]json.RawMessage `json:"row"`
	} `json:"rows"`
	Total int `json:"num_rows_total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Splits lists the splits of every config of dataset.
func (c *Client) Splits(ctx context.Context, dataset string) ([]Split, error) {
	if dataset == "" {
		return nil, errors.New("hub: dataset is required")
	}
	var resp splitsResponse
	if err := c.get(ctx, "/splits", url.Values{"dataset": {dataset}}, &resp); err != nil {
		return nil, err
	}
	return resp.Splits, nil
}

// Rows pages through a split and returns up to limit rows in order. A limit
// <= 0 reads the whole split. Rows keep the column order of the dataset
// features.
func (c *Client) Rows(ctx context.Context, dataset, config, split string, limit int) ([]record.Record, error) {
	out := []record.Record{}
	for offset := 0; ; {
		length := c.pageSize
		if limit > 0 && limit-len(out) < length {
			length = limit - len(out)
		}
		if length <= 0 {
			return out, nil
		}

		q := url.Values{
			"dataset": {dataset},
			"config":  {config},
			"split":   {split},
			"offset":  {strconv.Itoa(offset)},
			"length":  {strconv.Itoa(length)},
		}
		var page rowsResponse
		if err := c.get(ctx, "/rows", q, &page); err != nil {
			return nil, err
		}
		columns := make([]string, len(page.Features))
		for i, f := range page.Features {
			columns[i] = f.Name
		}
		for _, r := range page.Rows {
			rec, err := decodeRow(columns, r.Row)
			if err != nil {
				return nil, fmt.Errorf("hub: row %d: %w", r.Index, err)
			}
			out = append(out, rec)
		}

		c.logger.Debug("rows page fetched",
			zap.String("dataset", dataset),
			zap.String("split", split),
			zap.Int("offset", offset),
			zap.Int("rows", len(page.Rows)),
			zap.Int("total", page.Total))

		offset += len(page.Rows)
		if len(page.Rows) < length || (page.Total > 0 && offset >= page.Total) {
			return out, nil
		}
	}
}

// Load reads the splits of the first config of dataset, keyed by split name.
// An empty split loads every split; otherwise the map has one entry.
func (c *Client) Load(ctx context.Context, dataset, split string) (map[string][]record.Record, error) {
	return c.LoadConfig(ctx, dataset, "", split, 0)
}

// LoadConfig is Load with an explicit config, empty for the first one, and
// a per-split row limit, <= 0 for all rows.
func (c *Client) LoadConfig(ctx context.Context, dataset, config, split string, limit int) (map[string][]record.Record, error) {
	splits, err := c.Splits(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no splits", ErrNotFound, dataset)
	}
	if config == "" {
		config = splits[0].Config
	}

	out := make(map[string][]record.Record)
	for _, s := range splits {
		if s.Config != config || (split != "" && s.Split != split) {
			continue
		}
		rows, err := c.Rows(ctx, dataset, s.Config, s.Split, limit)
		if err != nil {
			return nil, fmt.Errorf("hub: load %s/%s: %w", dataset, s.Split, err)
		}
		out[s.Split] = rows
		c.logger.Info("split loaded",
			zap.String("dataset", dataset),
			zap.String("config", s.Config),
			zap.String("split", s.Split),
			zap.Int("rows", len(rows)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: config %q split %q of %s", ErrNotFound, config, split, dataset)
	}
	return out, nil
}

func decodeRow(columns []string, row map[string]json.RawMessage) (record.Record, error) {
	if len(columns) == 0 {
		for k := range row {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	values := make([]any, len(columns))
	for i, col := range columns {
		raw, ok := row[col]
		if !ok {
			continue
		}
		v, err := record.DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		values[i] = v
	}
	return record.NewRow(columns, values), nil
}

// get performs one API call with rate limiting and retries on 429 and 5xx.
func (c *Client) get(ctx context.Context, path string, q url.Values, into any) error {
	endpoint := c.base + path + "?" + q.Encode()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, status, err := c.do(ctx, endpoint)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(body, into); err != nil {
				return fmt.Errorf("hub: decode %s: %w", path, err)
			}
			return nil
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiMessage(body, status))
		case status == http.StatusTooManyRequests || status >= 500:
			if attempt >= c.maxRetries {
				return fmt.Errorf("hub: %s: %s", path, apiMessage(body, status))
			}
			wait := c.backoff << attempt
			c.logger.Warn("retrying request",
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("wait", wait))
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		default:
			return fmt.Errorf("hub: %s: %s", path, apiMessage(body, status))
		}
	}
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func apiMessage(body []byte, status int) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Sprintf("HTTP %d: %s", status, e.Error)
	}
	return fmt.Sprintf("HTTP %d", status)
}
