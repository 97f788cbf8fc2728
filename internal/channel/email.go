package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/radiantcrm/triage-engine/internal/config"
	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/pkg/httpretry"
)

// EmailConnector talks to the inbound mail provider API.
type EmailConnector struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// NewEmailConnector creates a connector for the email channel.
func NewEmailConnector(cfg config.ChannelConfig) *EmailConnector {
	return &EmailConnector{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Kind identifies the channel this connector serves.
func (c *EmailConnector) Kind() domain.ChannelKind {
	return domain.ChannelEmail
}

// emailMessage mirrors the provider's inbox message payload.
type emailMessage struct {
	ID             string              `json:"id"`
	From           string              `json:"from"`
	Subject        string              `json:"subject"`
	Snippet        string              `json:"snippet"`
	Body           string              `json:"body"`
	Classification emailClassification `json:"classification"`
	SuggestedReply *emailReply         `json:"suggested_reply,omitempty"`
	ReceivedAt     string              `json:"received_at"`
}

type emailClassification struct {
	Category   string   `json:"category"`
	Priority   string   `json:"priority"`
	Risk       string   `json:"risk"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type emailReply struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type emailInboxResponse struct {
	Messages   []emailMessage `json:"messages"`
	NextCursor string         `json:"next_cursor"`
}

// Pull fetches a page of inbox messages newer than the cursor.
func (c *EmailConnector) Pull(ctx context.Context, cursor string) (*PullResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/v1/inbox", params, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching inbox: %w", err)
	}

	var resp emailInboxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing inbox response: %w", err)
	}

	result := &PullResult{NextCursor: resp.NextCursor}
	for _, msg := range resp.Messages {
		item := RemoteItem{
			ExternalID: msg.ID,
			Sender:     msg.From,
			Subject:    msg.Subject,
			Preview:    msg.Snippet,
			Body:       msg.Body,
			Category:   msg.Classification.Category,
			Priority:   normalizePriority(msg.Classification.Priority),
			Risk:       normalizeRisk(msg.Classification.Risk),
			Confidence: msg.Classification.Confidence,
			Reasons:    msg.Classification.Reasons,
			ReceivedAt: parseTimestamp(msg.ReceivedAt),
		}
		if msg.SuggestedReply != nil {
			item.DraftSubject = msg.SuggestedReply.Subject
			item.DraftBody = msg.SuggestedReply.Body
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// Send delivers the item's draft as a reply to the original message.
func (c *EmailConnector) Send(ctx context.Context, item *domain.InboundItem) error {
	if !item.HasDraft() {
		return fmt.Errorf("email %s has no draft to send", item.ID)
	}

	payload := emailReply{
		Subject: item.DraftSubject,
		Body:    item.DraftBody,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}

	path := fmt.Sprintf("/v1/messages/%s/reply", url.PathEscape(item.ExternalID))
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, data); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// doRequest makes an HTTP request to the mail provider API
func (c *EmailConnector) doRequest(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("mail API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
