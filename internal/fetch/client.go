// Package fetch is the HTTP request layer: paged list reads and remote
// mutations against the social API.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/optimistic"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/unread"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/clients"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

const maxBodySize = 8 << 20

// Config represents the configuration for the API client
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  logging.Logger
	// Read configures retries and the breaker for page fetches
	Read *clients.HTTPExecutorConfig
}

// Client calls the social API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logging.Logger
	read       failsafe.Executor[*http.Response]
	write      failsafe.Executor[*http.Response]
}

// NewClient creates an API client. Reads retry and share a circuit breaker;
// mutations are never retried.
func NewClient(cfg Config) *Client {
	logger := logging.OrDiscard(cfg.Logger)
	readCfg := clients.DefaultHTTPExecutorConfig("api-read")
	if cfg.Read != nil {
		readCfg = *cfg.Read
	}
	readCfg.Logger = logger

	writeCfg := clients.DefaultHTTPExecutorConfig("api-write")
	writeCfg.MaxRetries = 0
	writeCfg.ShouldRetry = clients.NeverRetry
	writeCfg.BreakerThreshold = 0

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      strings.TrimPrefix(cfg.Token, "Bearer "),
		httpClient: clients.NewHTTPClient(cfg.Timeout),
		logger:     logger,
		read:       clients.NewHTTPExecutor(readCfg),
		write:      clients.NewHTTPExecutor(writeCfg),
	}
}

// pageResponse is the paged list body: {"items": [...], "total_page": n}.
// Some endpoints wrap it in "data".
type pageResponse struct {
	Items     []*model.Item `json:"items"`
	TotalPage int           `json:"total_page"`
	Data      *struct {
		Items     []*model.Item `json:"items"`
		TotalPage int           `json:"total_page"`
	} `json:"data"`
}

// PageURL builds the request URL for one page of q
func (c *Client) PageURL(q pagecache.Query, page int) string {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(q.PageLimit()))
	if q.HasText() {
		params.Set("q", strings.TrimSpace(q.Text))
	}
	for k, v := range q.Filters {
		params.Set(k, v)
	}
	return c.baseURL + q.Endpoint + "?" + params.Encode()
}

// FetchPage loads one page. It satisfies pagecache.Fetcher.
func (c *Client) FetchPage(ctx context.Context, q pagecache.Query, page int) (pagecache.Page, error) {
	target := c.PageURL(q, page)
	resp, err := c.do(ctx, c.read, http.MethodGet, target, nil)
	if err != nil {
		return pagecache.Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return pagecache.Page{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body pageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return pagecache.Page{}, fmt.Errorf("failed to parse page: %w", err)
	}
	if body.Data != nil && body.Items == nil {
		body.Items, body.TotalPage = body.Data.Items, body.Data.TotalPage
	}
	return pagecache.Page{Items: body.Items, TotalPages: body.TotalPage}, nil
}

// Mutate sends a write. Transport errors are returned; any HTTP status is
// reported in the result for the mutator to judge.
func (c *Client) Mutate(ctx context.Context, method, path string, payload any) (optimistic.Result, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return optimistic.Result{}, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := c.do(ctx, c.write, method, c.baseURL+path, body)
	if err != nil {
		return optimistic.Result{}, err
	}
	defer resp.Body.Close()

	res := optimistic.Result{StatusCode: resp.StatusCode}
	if res.OK() {
		res.CanonicalID = canonicalID(io.LimitReader(resp.Body, maxBodySize))
	}
	c.logger.WithFields(logging.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("Mutation sent")
	return res, nil
}

// Remote binds a mutation request for the optimistic mutator
func (c *Client) Remote(method, path string, payload any) optimistic.Remote {
	return func(ctx context.Context) (optimistic.Result, error) {
		return c.Mutate(ctx, method, path, payload)
	}
}

// Receipt binds a read receipt call for the unread accumulator
func (c *Client) Receipt(path string) unread.Receipt {
	return func(ctx context.Context) error {
		res, err := c.Mutate(ctx, http.MethodPatch, path, nil)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("read receipt returned status %d", res.StatusCode)
		}
		return nil
	}
}

// canonicalID digs the created entity id out of {"id"}, {"_id"} or
// {"data": {...}} bodies.
func canonicalID(r io.Reader) string {
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	if id := idOf(body); id != "" {
		return id
	}
	if data, ok := body["data"].(map[string]any); ok {
		return idOf(data)
	}
	return ""
}

func idOf(m map[string]any) string {
	for _, k := range []string{"_id", "id"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, executor failsafe.Executor[*http.Response], method, target string, body []byte) (*http.Response, error) {
	var prev *http.Response
	resp, err := clients.ExecuteHTTP(ctx, executor, func() (*http.Response, error) {
		if prev != nil {
			_ = prev.Body.Close()
			prev = nil
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		r, err := c.httpClient.Do(req)
		prev = r
		return r, err
	})
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to call API: %w", err)
	}
	return resp, nil
}
