package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"gemini-desk/internal/exchange"
)

const orderEventsPath = "/v1/order/events"

// Gemini sends a heartbeat every five seconds on the order events stream.
const orderEventsReadTimeout = 30 * time.Second

type streamMessage struct {
	Type string `json:"type"`
}

// WatchOrder streams lifecycle events of a single order until fn returns false,
// the order closes, or ctx ends.
func (c *Client) WatchOrder(ctx context.Context, orderID string, fn func(exchange.OrderEvent) bool) error {
	if c.wsBaseURL == "" {
		return errors.New("ws base url required")
	}
	if _, err := parseOrderID(orderID); err != nil {
		return err
	}
	headers, err := c.signedHeaders(orderEventsPath, nil)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("symbolFilter", c.symbol)
	endpoint := c.wsBaseURL + orderEventsPath + "?" + q.Encode()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(orderEventsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if data[0] != '[' {
			var msg streamMessage
			if err := json.Unmarshal(data, &msg); err == nil && c.debugEnabled() {
				log.Printf("level=DEBUG event=order_events_message type=%q", msg.Type)
			}
			continue
		}
		var events []orderEvent
		if err := json.Unmarshal(data, &events); err != nil {
			continue
		}
		for _, ev := range events {
			if ev.OrderID != orderID {
				continue
			}
			out := exchange.OrderEvent{
				Type:   ev.EventType,
				Order:  parseOrder(ev.orderResponse),
				Reason: ev.Reason,
			}
			if !fn(out) {
				return nil
			}
			if isTerminalEvent(ev.EventType) {
				return nil
			}
		}
	}
}

func isTerminalEvent(t string) bool {
	switch t {
	case "closed", "cancelled", "rejected":
		return true
	}
	return false
}
