package userclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"tgcord/pkg/circuitbreaker"
	"tgcord/pkg/constants"

	"github.com/sirupsen/logrus"
)

// Client is the secondary, membership-bound client of the source platform
type Client interface {
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	ListJoinedChats(ctx context.Context) ([]Chat, error)
	JoinChat(ctx context.Context, invite string) error
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)
	DownloadMedia(ctx context.Context, chatID, messageID int64, dest string) (int64, error)
}

// SidecarClient implements Client over the sidecar's HTTP API
type SidecarClient struct {
	baseURL  string
	client   *http.Client
	download *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *SidecarClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultUserClientTimeoutSec * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &SidecarClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   httpClient,
		download: &http.Client{Timeout: constants.DefaultMediaDownloadTimeoutSec * time.Second, Transport: httpClient.Transport},
		breaker: circuitbreaker.NewWithSettings(circuitbreaker.Settings{
			Name:        "userclient",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			IsFailure:   func(err error) bool { return KindOf(err) == KindTransient },
			Logger:      logger,
		}),
		logger: logger,
	}
}

// Breaker exposes the circuit breaker guarding sidecar calls.
func (c *SidecarClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// BaseURL returns the sidecar address without a trailing slash.
func (c *SidecarClient) BaseURL() string {
	return c.baseURL
}

func (c *SidecarClient) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	if err := c.getJSON(ctx, "getChat", fmt.Sprintf("/chats/%d", chatID), &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *SidecarClient) ListJoinedChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.getJSON(ctx, "listJoinedChats", "/dialogs", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *SidecarClient) JoinChat(ctx context.Context, invite string) error {
	body, err := json.Marshal(joinRequest{Invite: invite})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/join", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return &Error{Op: "joinChat", Kind: KindTransient, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return classify("joinChat", resp)
		}
		return nil
	})
}

// GetMessage reads one message. Ids that resolve to nothing, including empty
// placeholders, are reported as KindNotFound.
func (c *SidecarClient) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	var msg Message
	if err := c.getJSON(ctx, "getMessage", fmt.Sprintf("/chats/%d/messages/%d", chatID, messageID), &msg); err != nil {
		return nil, err
	}
	if msg.Empty {
		return nil, &Error{Op: "getMessage", Kind: KindNotFound}
	}
	if msg.ChatID == 0 {
		msg.ChatID = chatID
	}
	return &msg, nil
}

// DownloadMedia streams the message's media to dest and returns its size.
func (c *SidecarClient) DownloadMedia(ctx context.Context, chatID, messageID int64, dest string) (int64, error) {
	var written int64
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/chats/%d/messages/%d/media", c.baseURL, chatID, messageID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.download.Do(req)
		if err != nil {
			return &Error{Op: "downloadMedia", Kind: KindTransient, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify("downloadMedia", resp)
		}

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePermissions)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		n, copyErr := io.Copy(out, resp.Body)
		closeErr := out.Close()
		if copyErr != nil || closeErr != nil {
			os.Remove(dest)
			if copyErr == nil {
				copyErr = closeErr
			}
			return &Error{Op: "downloadMedia", Kind: KindTransient, Err: copyErr}
		}
		written = n
		return nil
	})
	return written, err
}

func (c *SidecarClient) getJSON(ctx context.Context, op, path string, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		c.logger.WithField("op", op).Debug("Calling user session sidecar")

		resp, err := c.client.Do(req)
		if err != nil {
			return &Error{Op: op, Kind: KindTransient, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classify(op, resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Kind: KindTransient, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil
	})
}

// classify maps a non-success response to an Error. An explicit kind in the
// body wins over the status code. A 404 alone stays transient: only the
// sidecar's own not_found kind says the message is gone, a bare 404 can come
// from a proxy or a wrong base URL.
func classify(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	_ = json.Unmarshal(data, &body)

	e := &Error{Op: op, Kind: KindTransient}
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	e.Err = fmt.Errorf("status %d: %s", resp.StatusCode, msg)

	switch body.Kind {
	case "not_found", "invalid_id":
		e.Kind = KindNotFound
	case "flood_wait", "rate_limited":
		e.Kind = KindRateLimited
	case "permission_denied", "channel_private":
		e.Kind = KindPermissionDenied
	case "already_participant":
		e.Kind = KindAlreadyParticipant
	default:
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			e.Kind = KindRateLimited
		case http.StatusForbidden, http.StatusUnauthorized:
			e.Kind = KindPermissionDenied
		case http.StatusConflict:
			e.Kind = KindAlreadyParticipant
		}
	}

	if e.Kind == KindRateLimited {
		e.Wait = time.Duration(body.RetryAfter * float64(time.Second))
		if e.Wait == 0 {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				e.Wait = time.Duration(secs) * time.Second
			}
		}
	}
	return e
}
