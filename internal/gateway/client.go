// Package gateway is the HTTP client for the messaging gateway. It owns the
// retry policy for the chat-list fetch and the short-timeout profile picture
// lookup used by avatar enrichment.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/normalize"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
)

const (
	endpointChats   = "chats"
	endpointPicture = "profile-picture"
)

// Config holds the gateway connection settings.
type Config struct {
	BaseURL        string
	Token          string
	ChatsTimeout   time.Duration // whole ListChats operation, retries included
	PictureTimeout time.Duration // single profile picture request
	MaxAttempts    int           // total attempts for ListChats
	RetryInterval  time.Duration // base interval of the linear backoff
}

func (c *Config) applyDefaults() {
	if c.ChatsTimeout <= 0 {
		c.ChatsTimeout = 10 * time.Second
	}
	if c.PictureTimeout <= 0 {
		c.PictureTimeout = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
}

// Client talks to the messaging gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Client. The underlying http.Client carries no global
// timeout; each operation bounds itself via context.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// chatsResponse is the gateway's chat-list envelope. success=false with a 200
// status is how the gateway reports its own upstream trouble.
type chatsResponse struct {
	Success bool                `json:"success"`
	Data    []model.GatewayChat `json:"data"`
	Error   string              `json:"error,omitempty"`
	Message string              `json:"message,omitempty"`
}

type pictureResponse struct {
	Avatar string `json:"avatar,omitempty"`
}

// linearBackOff waits interval, 2*interval, 3*interval between attempts.
type linearBackOff struct {
	interval time.Duration
	attempt  int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// ListChats fetches the live chat list, retrying transient failures and
// success=false envelopes with linear backoff up to MaxAttempts. The whole
// operation, retries included, is bounded by ChatsTimeout.
func (c *Client) ListChats(ctx context.Context) ([]model.GatewayChat, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.ChatsTimeout)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			&linearBackOff{interval: c.cfg.RetryInterval},
			uint64(c.cfg.MaxAttempts-1),
		),
		opCtx,
	)
	notify := func(err error, d time.Duration) {
		observer.IncGatewayRetry(endpointChats)
		logger.FromContext(ctx).Warn("Retrying gateway chat-list fetch",
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	chats, err := backoff.RetryNotifyWithData(func() ([]model.GatewayChat, error) {
		chats, err := c.fetchChats(opCtx)
		if err != nil && !apperrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return chats, err
	}, policy, notify)
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) fetchChats(ctx context.Context) ([]model.GatewayChat, error) {
	start := time.Now()
	req, err := c.newRequest(ctx, endpointChats, nil)
	if err != nil {
		return nil, apperrors.NewFatal(err, "building chat-list request")
	}

	resp, err := c.httpClient.Do(req)
	observer.ObserveGatewayRequestDuration(endpointChats, time.Since(start))
	if err != nil {
		observer.IncGatewayRequest(endpointChats, "network_error")
		return nil, apperrors.NewRetryable(err, "gateway chat-list request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		observer.IncGatewayRequest(endpointChats, fmt.Sprintf("http_%d", resp.StatusCode))
		statusErr := fmt.Errorf("%w: chat list returned status %d: %s",
			apperrors.ErrGateway, resp.StatusCode, string(body))
		if isRetryableStatus(resp.StatusCode) {
			return nil, apperrors.NewRetryable(statusErr, "gateway chat-list rejected")
		}
		return nil, apperrors.NewFatal(statusErr, "gateway chat-list rejected")
	}

	var envelope chatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		observer.IncGatewayRequest(endpointChats, "decode_error")
		return nil, apperrors.NewRetryable(
			fmt.Errorf("%w: %v", apperrors.ErrGateway, err), "decoding chat-list response")
	}
	if !envelope.Success {
		observer.IncGatewayRequest(endpointChats, "gateway_failure")
		return nil, apperrors.NewRetryable(
			fmt.Errorf("%w: success=false: %s", apperrors.ErrGateway,
				firstOf(envelope.Error, envelope.Message, "no detail")),
			"gateway reported failure")
	}

	observer.IncGatewayRequest(endpointChats, "success")
	return envelope.Data, nil
}

// ProfilePicture fetches the avatar URL for one chat ID. An empty string with
// nil error means the contact has no picture. No retries: enrichment is
// best-effort and the caller swallows failures.
func (c *Client) ProfilePicture(ctx context.Context, chatID string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.PictureTimeout)
	defer cancel()

	query := url.Values{"phone": {normalize.Standardize(chatID)}}
	req, err := c.newRequest(opCtx, endpointPicture, query)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observer.ObserveGatewayRequestDuration(endpointPicture, time.Since(start))
	if err != nil {
		observer.IncGatewayRequest(endpointPicture, "network_error")
		return "", fmt.Errorf("%w: profile picture request failed: %v", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Contact without a picture.
		observer.IncGatewayRequest(endpointPicture, "success")
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		observer.IncGatewayRequest(endpointPicture, fmt.Sprintf("http_%d", resp.StatusCode))
		return "", fmt.Errorf("%w: profile picture returned status %d", apperrors.ErrGateway, resp.StatusCode)
	}

	var envelope pictureResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		observer.IncGatewayRequest(endpointPicture, "decode_error")
		return "", fmt.Errorf("%w: decoding profile picture response: %v", apperrors.ErrGateway, err)
	}

	observer.IncGatewayRequest(endpointPicture, "success")
	return envelope.Avatar, nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string, query url.Values) (*http.Request, error) {
	u := fmt.Sprintf("%s/%s", c.cfg.BaseURL, endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("token", c.cfg.Token)
	return req, nil
}

// isRetryableStatus: server-side trouble and throttling are worth another
// attempt; other client errors are not.
func isRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
