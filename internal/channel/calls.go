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

// CallsConnector talks to the call platform API. Inbound items are
// finished-call transcripts; replies go out as text-message follow-ups
// to the caller.
type CallsConnector struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// NewCallsConnector creates a connector for the calls channel.
func NewCallsConnector(cfg config.ChannelConfig) *CallsConnector {
	return &CallsConnector{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// Kind identifies the channel this connector serves.
func (c *CallsConnector) Kind() domain.ChannelKind {
	return domain.ChannelCall
}

// callTranscript mirrors the provider's completed-call payload.
type callTranscript struct {
	ID             string             `json:"id"`
	Caller         string             `json:"caller"`
	Summary        string             `json:"summary"`
	Transcript     string             `json:"transcript"`
	Classification callClassification `json:"classification"`
	SuggestedText  *callText          `json:"suggested_text,omitempty"`
	EndedAt        string             `json:"ended_at"`
}

type callClassification struct {
	Category   string   `json:"category"`
	Priority   string   `json:"priority"`
	Risk       string   `json:"risk"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type callText struct {
	Body string `json:"body"`
}

type callTranscriptsResponse struct {
	Transcripts []callTranscript `json:"transcripts"`
	NextCursor  string           `json:"next_cursor"`
}

// Pull fetches a page of completed-call transcripts newer than the
// cursor. The call summary doubles as the list preview; the subject is
// left empty because calls have none.
func (c *CallsConnector) Pull(ctx context.Context, cursor string) (*PullResult, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/v2/transcripts", params, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching transcripts: %w", err)
	}

	var resp callTranscriptsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing transcripts response: %w", err)
	}

	result := &PullResult{NextCursor: resp.NextCursor}
	for _, tr := range resp.Transcripts {
		item := RemoteItem{
			ExternalID: tr.ID,
			Sender:     tr.Caller,
			Preview:    tr.Summary,
			Body:       tr.Transcript,
			Category:   tr.Classification.Category,
			Priority:   normalizePriority(tr.Classification.Priority),
			Risk:       normalizeRisk(tr.Classification.Risk),
			Confidence: tr.Classification.Confidence,
			Reasons:    tr.Classification.Reasons,
			ReceivedAt: parseTimestamp(tr.EndedAt),
		}
		if tr.SuggestedText != nil {
			item.DraftBody = tr.SuggestedText.Body
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// Send delivers the item's draft as a text follow-up to the caller.
func (c *CallsConnector) Send(ctx context.Context, item *domain.InboundItem) error {
	if !item.HasDraft() {
		return fmt.Errorf("call %s has no draft to send", item.ID)
	}

	data, err := json.Marshal(callText{Body: item.DraftBody})
	if err != nil {
		return fmt.Errorf("encoding text follow-up: %w", err)
	}

	path := fmt.Sprintf("/v2/calls/%s/text", url.PathEscape(item.ExternalID))
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, data); err != nil {
		return fmt.Errorf("sending text follow-up: %w", err)
	}
	return nil
}

// doRequest makes an HTTP request to the call platform API
func (c *CallsConnector) doRequest(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
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

	req.Header.Set("X-API-Key", c.apiKey)
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
		return nil, fmt.Errorf("call API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
