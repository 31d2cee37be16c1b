// Package graph is a client for the list API of the record store: a
// SharePoint list reached through Microsoft Graph with a delegated token.
package graph

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

	"injury-report/internal/auth"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrListNotFound = errors.New("list not found in site")
)

// APIError is a non-2xx response from the record store.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record store returned status: %s, body: %s", e.Status, e.Body)
}

// ListRef identifies the list holding the reports.
type ListRef struct {
	SiteID string
	ListID string
}

// Item is a list item with its field values.
type Item struct {
	ID                   string         `json:"id"`
	CreatedDateTime      time.Time      `json:"createdDateTime"`
	LastModifiedDateTime time.Time      `json:"lastModifiedDateTime"`
	Fields               map[string]any `json:"fields"`
}

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ResolveSite looks up a site id from its hostname and server-relative path.
func (c *Client) ResolveSite(ctx context.Context, ts auth.TokenSource, hostname, sitePath string) (string, error) {
	var site struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/sites/%s:%s", hostname, sitePath)
	if err := c.do(ctx, ts, http.MethodGet, path, nil, &site); err != nil {
		return "", fmt.Errorf("failed to resolve site %s%s: %w", hostname, sitePath, err)
	}
	return site.ID, nil
}

// ResolveList looks up a list id by display name.
func (c *Client) ResolveList(ctx context.Context, ts auth.TokenSource, siteID, name string) (string, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("displayName eq '%s'", strings.ReplaceAll(name, "'", "''")))
	path := fmt.Sprintf("/sites/%s/lists?%s", url.PathEscape(siteID), q.Encode())

	var resp struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	if err := c.do(ctx, ts, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve list %q: %w", name, err)
	}
	if len(resp.Value) == 0 {
		return "", fmt.Errorf("%w: %q", ErrListNotFound, name)
	}
	return resp.Value[0].ID, nil
}

type fieldsBody struct {
	Fields any `json:"fields"`
}

// Create adds an item and returns its id.
func (c *Client) Create(ctx context.Context, ts auth.TokenSource, ref ListRef, fields any) (string, error) {
	var item Item
	if err := c.do(ctx, ts, http.MethodPost, itemsPath(ref), fieldsBody{fields}, &item); err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return item.ID, nil
}

// Update overwrites the given fields of an existing item. A field sent as
// null is cleared; fields left out keep their stored value.
func (c *Client) Update(ctx context.Context, ts auth.TokenSource, ref ListRef, id string, fields any) error {
	if err := c.do(ctx, ts, http.MethodPatch, itemPath(ref, id), fieldsBody{fields}, nil); err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, ts auth.TokenSource, ref ListRef, id string) (*Item, error) {
	var item Item
	if err := c.do(ctx, ts, http.MethodGet, itemPath(ref, id)+"?$expand=fields", nil, &item); err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return &item, nil
}

// List returns every item of the list, following server-side paging.
func (c *Client) List(ctx context.Context, ts auth.TokenSource, ref ListRef) ([]Item, error) {
	var items []Item
	next := itemsPath(ref) + "?$expand=fields"
	for next != "" {
		var page struct {
			Value    []Item `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, ts, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		items = append(items, page.Value...)
		next = page.NextLink
	}
	return items, nil
}

func (c *Client) Delete(ctx context.Context, ts auth.TokenSource, ref ListRef, id string) error {
	if err := c.do(ctx, ts, http.MethodDelete, itemPath(ref, id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

func itemsPath(ref ListRef) string {
	return fmt.Sprintf("/sites/%s/lists/%s/items", url.PathEscape(ref.SiteID), url.PathEscape(ref.ListID))
}

func itemPath(ref ListRef, id string) string {
	return itemsPath(ref) + "/" + url.PathEscape(id)
}

// do sends one request. path is relative to BaseURL unless it is already an
// absolute URL (paging links are).
func (c *Client) do(ctx context.Context, ts auth.TokenSource, method, path string, body, out any) error {
	if ts == nil {
		return auth.ErrUnauthenticated
	}
	token, err := ts.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
	}

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.BaseURL + path
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bodyBytes)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
