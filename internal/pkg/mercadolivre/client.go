// Package mercadolivre calls the Mercado Livre REST API on behalf of a seller.
package mercadolivre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/utils"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://api.mercadolibre.com"
	DefaultTimeout = 30 * time.Second

	// Endpoint labels used in errors and metrics.
	EndpointQuestion        = "question"
	EndpointItem            = "item"
	EndpointItemDescription = "item_description"
	EndpointUser            = "user"
	EndpointQuestionSearch  = "question_search"
)

// Client is a thin marketplace API client. It never retries; callers own the policy.
type Client struct {
	http    *resty.Client
	metrics *metrics.Metrics
}

// NewClient creates a client for baseURL. m may be nil.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, metrics: m}
}

func (c *Client) GetQuestion(ctx context.Context, token, questionID string) (*Question, error) {
	var out Question
	path := "/questions/" + url.PathEscape(questionID)
	if err := c.get(ctx, EndpointQuestion, token, path, map[string]string{"api_version": "4"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetItem(ctx context.Context, token, itemID string) (*Item, error) {
	var out Item
	if err := c.get(ctx, EndpointItem, token, "/items/"+url.PathEscape(itemID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetItemDescription(ctx context.Context, token, itemID string) (*Description, error) {
	var out Description
	path := "/items/" + url.PathEscape(itemID) + "/description"
	if err := c.get(ctx, EndpointItemDescription, token, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUser(ctx context.Context, token, userID string) (*User, error) {
	var out User
	if err := c.get(ctx, EndpointUser, token, "/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchQuestions lists questions newest first.
func (c *Client) SearchQuestions(ctx context.Context, token string, params SearchParams) (*QuestionSearch, error) {
	query := map[string]string{
		"api_version": "4",
		"sort_fields": "date_created",
		"sort_types":  "DESC",
	}
	if params.ItemID != "" {
		query["item"] = params.ItemID
	}
	if params.SellerID != "" {
		query["seller_id"] = params.SellerID
	}
	if params.FromID != "" {
		query["from"] = params.FromID
	}
	if params.Limit > 0 {
		query["limit"] = strconv.Itoa(params.Limit)
	}

	var out QuestionSearch
	if err := c.get(ctx, EndpointQuestionSearch, token, "/questions/search", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, endpoint, token, path string, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	start := time.Now()
	resp, err := req.Get(path)
	if err != nil {
		c.metrics.RecordUpstreamRequest(endpoint, 0, time.Since(start))
		return fmt.Errorf("mercadolivre %s: %w", endpoint, err)
	}
	c.metrics.RecordUpstreamRequest(endpoint, resp.StatusCode(), time.Since(start))

	if resp.IsError() {
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.Body()),
		}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("mercadolivre %s: decode response: %w", endpoint, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return utils.Truncate(payload.Message, 200)
		}
		return utils.Truncate(payload.Error, 200)
	}
	return utils.Truncate(strings.TrimSpace(string(body)), 200)
}

// ItemPermalink builds the public listing URL for an item id such as "MLB123".
func ItemPermalink(itemID string) string {
	i := 0
	for i < len(itemID) && (itemID[i] < '0' || itemID[i] > '9') {
		i++
	}
	if i == 0 || i == len(itemID) {
		return "https://produto.mercadolivre.com.br/" + itemID
	}
	return "https://produto.mercadolivre.com.br/" + itemID[:i] + "-" + itemID[i:]
}
