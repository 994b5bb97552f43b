package userclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/websocket"
)

// Subscribe connects to the sidecar's live event stream and calls handler for
// every event until ctx is cancelled or the connection drops. Reconnecting is
// left to the caller.
func (c *SidecarClient) Subscribe(ctx context.Context, handler func(Event)) error {
	conn, _, err := websocket.Dial(ctx, eventsURL(c.baseURL), &websocket.DialOptions{HTTPClient: c.client})
	if err != nil {
		return &Error{Op: "subscribe", Kind: KindTransient, Err: err}
	}
	defer conn.CloseNow()

	c.logger.Info("Subscribed to user session event stream")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "shutting down")
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return &Error{Op: "subscribe", Kind: KindTransient, Err: fmt.Errorf("event stream read: %w", err)}
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.WithError(err).Warn("Skipping malformed event")
			continue
		}

		switch ev.Type {
		case EventDeleted, EventEdited:
			handler(ev)
		default:
			c.logger.WithField("type", ev.Type).Debug("Ignoring unknown event type")
		}
	}
}

func eventsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/events"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/events"
	}
	return baseURL + "/events"
}
