package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/subscriptiond/internal/subscription/changefeed"
	"go.uber.org/zap"
)

const (
	eventsHeartbeat = 15 * time.Second
	wsWriteWait     = 10 * time.Second
	wsPongWait      = 60 * time.Second
)

// StreamSubscriptionEvents pushes change notifications for the caller over
// Server-Sent Events. Clients re-fetch /subscriptions/me on every event.
func (s *Server) StreamSubscriptionEvents(c *gin.Context) {
	if s.changes == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	userID := identity.UserID.String()
	subscription, backlog, err := s.changes.Subscribe(userID)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	flusher, canFlush := writer.(http.Flusher)
	if !canFlush {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	for _, event := range backlog {
		if err := writeChangeEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if err := writeChangeEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeChangeEvent(w io.Writer, event changefeed.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: subscription.changed\ndata: %s\n\n", data)
	return err
}

// SubscriptionEventsSocket is the WebSocket flavor of the change stream.
// The socket is write-only; inbound frames are read and discarded so
// pongs and close frames are processed.
func (s *Server) SubscriptionEventsSocket(c *gin.Context) {
	if s.changes == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	identity, found := identityFromContext(c)
	if !found {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	subscription, backlog, err := s.changes.Subscribe(identity.UserID.String())
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"))
		return
	}
	defer subscription.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, event := range backlog {
		if err := writeSocketEvent(conn, event); err != nil {
			return
		}
	}

	ping := time.NewTicker(eventsHeartbeat)
	defer ping.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-closed:
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if err := writeSocketEvent(conn, event); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSocketEvent(conn *websocket.Conn, event changefeed.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(event)
}

// checkOrigin admits non-browser clients and the configured web client.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	allowed := strings.TrimRight(strings.TrimSpace(s.cfg.ClientURL), "/")
	if allowed == "" {
		return false
	}
	want, err := url.Parse(allowed)
	if err != nil {
		return false
	}
	got, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(got.Scheme, want.Scheme) && strings.EqualFold(got.Host, want.Host)
}
