// Package content reads the content pipeline from a Notion database.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"personalos/internal/core"
)

const (
	defaultBaseURL = "https://api.notion.com"
	notionVersion  = "2022-06-28"
	// maxPages caps how many result pages one call follows.
	maxPages = 10
)

// Pipeline statuses that are shown on the dashboard.
var visibleStatuses = []string{"In Progress", "Planning", "Published"}

// Distribution channels, in display order, keyed by their checkbox property.
var channels = []struct {
	Property string
	Label    string
}{
	{"LinkedIn", "LinkedIn Article"},
	{"Medium", "Medium Publication"},
	{"Twitter", "Twitter Thread"},
	{"Website", "Website Blog"},
}

type Config struct {
	Token      string
	DatabaseID string
	// BaseURL overrides https://api.notion.com.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client queries one Notion database.
type Client struct {
	token      string
	databaseID string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(config Config) (*Client, error) {
	if config.Token == "" || config.DatabaseID == "" {
		return nil, fmt.Errorf("notion credentials: %w", core.ErrNotConfigured)
	}
	c := &Client{
		token:      config.Token,
		databaseID: config.DatabaseID,
		baseURL:    config.BaseURL,
		httpClient: config.HTTPClient,
		timeout:    config.Timeout,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	return c, nil
}

type (
	queryRequest struct {
		Filter      queryFilter `json:"filter"`
		Sorts       []querySort `json:"sorts"`
		StartCursor string      `json:"start_cursor,omitempty"`
	}

	queryFilter struct {
		Or []propertyFilter `json:"or"`
	}

	propertyFilter struct {
		Property string       `json:"property"`
		Select   selectFilter `json:"select"`
	}

	selectFilter struct {
		Equals string `json:"equals"`
	}

	querySort struct {
		Property  string `json:"property"`
		Direction string `json:"direction"`
	}

	queryResponse struct {
		Results    []page `json:"results"`
		HasMore    bool   `json:"has_more"`
		NextCursor string `json:"next_cursor"`
	}

	page struct {
		Properties map[string]property `json:"properties"`
	}

	richText struct {
		PlainText string `json:"plain_text"`
	}

	property struct {
		Title    []richText `json:"title"`
		RichText []richText `json:"rich_text"`
		Select   *struct {
			Name string `json:"name"`
		} `json:"select"`
		Date *struct {
			Start string `json:"start"`
		} `json:"date"`
		Checkbox bool `json:"checkbox"`
	}
)

func newQuery(cursor string) queryRequest {
	q := queryRequest{
		Sorts:       []querySort{{Property: "Deadline", Direction: "ascending"}},
		StartCursor: cursor,
	}
	for _, s := range visibleStatuses {
		q.Filter.Or = append(q.Filter.Or, propertyFilter{Property: "Status", Select: selectFilter{Equals: s}})
	}
	return q
}

// ContentPipeline returns the pipeline items ordered by deadline.
func (c *Client) ContentPipeline(ctx context.Context) ([]core.ContentItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	items := []core.ContentItem{}
	cursor := ""
	for range maxPages {
		resp, err := c.query(ctx, cursor)
		if err != nil {
			return nil, &core.UpstreamFetchError{Resource: "notion:database", Err: err}
		}
		for _, p := range resp.Results {
			items = append(items, toContentItem(p))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return items, nil
}

func (c *Client) query(ctx context.Context, cursor string) (*queryResponse, error) {
	body, err := json.Marshal(newQuery(cursor))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, c.databaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query database: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("notion returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out queryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func toContentItem(p page) core.ContentItem {
	props := p.Properties

	item := core.ContentItem{
		Title:  "Untitled",
		Status: "Planning",
	}
	if t := props["Title"].Title; len(t) > 0 && t[0].PlainText != "" {
		item.Title = t[0].PlainText
	}
	if st := props["Subtitle"].RichText; len(st) > 0 {
		item.Subtitle = st[0].PlainText
	}
	if s := props["Status"].Select; s != nil && s.Name != "" {
		item.Status = s.Name
	}
	if d := props["Deadline"].Date; d != nil && d.Start != "" {
		start := d.Start
		item.Deadline = &start
	}

	for _, ch := range channels {
		item.DistributionChecklist = append(item.DistributionChecklist, core.ChecklistItem{
			Item: ch.Label,
			Done: props[ch.Property].Checkbox,
		})
	}
	return item
}
