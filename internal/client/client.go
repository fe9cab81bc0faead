// Package client is the Go client for the catalog ingestion API. It drives
// the full review workflow: upload a catalog, poll the parse until it
// settles, page through staged data, then import or discard the session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/httpretry"
)

// Client talks to one catalog server.
type Client struct {
	baseURL      string
	http         httpretry.HTTPDoer
	pollInterval time.Duration
	pageSize     int
}

// New creates a client for the given base URL ("http://host:port"). A nil
// doer gets a retrying HTTP client; pollInterval/pageSize of 0 use the
// defaults (2s, 200).
func New(baseURL string, doer httpretry.HTTPDoer, pollInterval time.Duration, pageSize int) *Client {
	if doer == nil {
		doer = httpretry.NewRetryClient(nil, 3)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         doer,
		pollInterval: pollInterval,
		pageSize:     pageSize,
	}
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// do executes one request and decodes the JSON response into dst (nil dst
// discards the body). Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Message = envelope.Error
			apiErr.Code = envelope.Code
		}
		return apiErr
	}

	if dst == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Upload submits a catalog PDF and returns the created session. maxPages of
// 0 parses the whole document. The file is buffered in memory so the
// underlying client can replay the body on retry.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, maxPages int) (*domain.UploadSession, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxPages > 0 {
		if err := mw.WriteField("max_pages", strconv.Itoa(maxPages)); err != nil {
			return nil, fmt.Errorf("build multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}

	var sess domain.UploadSession
	if err := c.do(ctx, http.MethodPost, "/api/uploads", bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches one session snapshot, including live parse progress.
func (c *Client) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	var sess domain.UploadSession
	if err := c.do(ctx, http.MethodGet, "/api/uploads/"+url.PathEscape(id), nil, "", &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns one page of recent sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]domain.UploadSession, int, error) {
	return fetchPage[domain.UploadSession](ctx, c, "/api/uploads", nil, limit, offset)
}

// PollUntilTerminal polls the session until parsing reaches a terminal
// status, calling onProgress (if non-nil) with each snapshot. Cancelling the
// context stops the poll before the next callback. A transport or server
// error halts polling and is returned; the parse itself keeps running
// server-side.
func (c *Client) PollUntilTerminal(ctx context.Context, id string, onProgress func(*domain.UploadSession)) (*domain.UploadSession, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		sess, err := c.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if onProgress != nil {
			onProgress(sess)
		}
		if sess.Status.IsTerminal() {
			return sess, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchAllProducts retrieves every staged product of the session across all
// pages. The first page establishes the total; the remaining pages are
// fetched concurrently and concatenated in page order.
func (c *Client) FetchAllProducts(ctx context.Context, uploadID string, includeSkipped bool) ([]domain.StagedProduct, error) {
	q := url.Values{}
	if uploadID != "" {
		q.Set("upload_id", uploadID)
	}
	if includeSkipped {
		q.Set("include_skipped", "true")
	}
	return fetchAll[domain.StagedProduct](ctx, c, "/api/staged/products", q)
}

// FetchAllFamilies retrieves every staged family of the session.
func (c *Client) FetchAllFamilies(ctx context.Context, uploadID string) ([]domain.StagedFamily, error) {
	q := url.Values{}
	if uploadID != "" {
		q.Set("upload_id", uploadID)
	}
	return fetchAll[domain.StagedFamily](ctx, c, "/api/staged/families", q)
}

// UpdateProduct applies a partial edit to a staged product.
func (c *Client) UpdateProduct(ctx context.Context, id string, patch any) (*domain.StagedProduct, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	var p domain.StagedProduct
	if err := c.do(ctx, http.MethodPatch, "/api/staged/products/"+url.PathEscape(id), bytes.NewReader(body), "application/json", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Import promotes the session's staged data to production.
func (c *Client) Import(ctx context.Context, id string) (*domain.ImportResult, error) {
	var res domain.ImportResult
	if err := c.do(ctx, http.MethodPost, "/api/uploads/"+url.PathEscape(id)+"/import", nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteSession removes the session with everything staged under it.
func (c *Client) DeleteSession(ctx context.Context, id string) (*domain.DeleteResult, error) {
	var res domain.DeleteResult
	if err := c.do(ctx, http.MethodDelete, "/api/uploads/"+url.PathEscape(id), nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CleanupExpired triggers one expiry/orphan sweep on the server.
func (c *Client) CleanupExpired(ctx context.Context) (*domain.CleanupResult, error) {
	var res domain.CleanupResult
	if err := c.do(ctx, http.MethodPost, "/api/maintenance/cleanup-expired", nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// fetchPage fetches one page of a list endpoint.
func fetchPage[T any](ctx context.Context, c *Client, path string, base url.Values, limit, offset int) ([]T, int, error) {
	q := url.Values{}
	for k, vs := range base {
		q[k] = vs
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var page struct {
		Items []T `json:"items"`
		Total int `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil, "", &page); err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

// fetchAll pages through a list endpoint. Page one is fetched alone to learn
// the total, then the rest run in parallel. Rows deleted between the first
// fetch and the rest simply shorten later pages; the result is what the
// server returned, not a consistency check.
func fetchAll[T any](ctx context.Context, c *Client, path string, base url.Values) ([]T, error) {
	first, total, err := fetchPage[T](ctx, c, path, base, c.pageSize, 0)
	if err != nil {
		return nil, err
	}
	if total <= c.pageSize {
		return first, nil
	}

	numPages := (total + c.pageSize - 1) / c.pageSize
	pages := make([][]T, numPages)
	errs := make([]error, numPages)
	pages[0] = first

	var wg sync.WaitGroup
	for i := 1; i < numPages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pages[i], _, errs[i] = fetchPage[T](ctx, c, path, base, c.pageSize, i*c.pageSize)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var out []T
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}
