package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
)

// Nudge is a push notification that the change log advanced.
type Nudge struct {
	Type     string `json:"type"`
	LatestID int64  `json:"latestId"`
}

// Subscribe connects to the server's websocket and calls fn for every nudge
// until ctx is cancelled or the connection drops. fn runs on the reading
// goroutine and must not block for long.
func (c *Client) Subscribe(ctx context.Context, fn func(Nudge)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"

	header := http.Header{}
	if c.userID != 0 {
		header.Set(userHeader, strconv.FormatInt(c.userID, 10))
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return errors.New("server closed subscription")
			}
			return fmt.Errorf("subscription read failed: %w", err)
		}

		var n Nudge
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		fn(n)
	}
}
