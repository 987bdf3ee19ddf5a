package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Pusher delivers one text message to a messaging user.
type Pusher interface {
	Push(ctx context.Context, to, text string) error
}

// DefaultAPIBase is the messaging API host.
const DefaultAPIBase = "https://api.line.me"

// LineClient pushes text messages through the LINE Messaging API.
type LineClient struct {
	hc          *http.Client
	base        string
	accessToken string
}

// NewLineClient returns a client authenticating with accessToken. An empty
// base uses DefaultAPIBase.
func NewLineClient(base, accessToken string, timeout time.Duration) *LineClient {
	if base == "" {
		base = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LineClient{
		hc:          &http.Client{Timeout: timeout},
		base:        strings.TrimRight(base, "/"),
		accessToken: accessToken,
	}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Push sends text to the user. Any non-2xx response is an error carrying the
// API's message when present.
func (c *LineClient) Push(ctx context.Context, to, text string) error {
	if c.accessToken == "" {
		return fmt.Errorf("messaging access token not configured")
	}
	body, err := json.Marshal(pushRequest{To: to, Messages: []textMessage{{Type: "text", Text: text}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 300 {
		var r struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &r)
		if r.Message != "" {
			return fmt.Errorf("push failed: %s (status=%d)", r.Message, resp.StatusCode)
		}
		return fmt.Errorf("push failed (status=%d)", resp.StatusCode)
	}
	return nil
}
