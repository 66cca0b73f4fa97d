package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/rs/zerolog"
)

// Stream event names
const (
	EventNotifications = "notifications"
	EventAlert         = "alert"
	EventSession       = "session"
)

const defaultHeartbeat = 30 * time.Second

// FeedSource provides the feed a new stream starts with
type FeedSource interface {
	Snapshot() models.NotificationFeed
}

type streamEvent struct {
	Name string
	Data any
}

// StreamHandler pushes notification updates to connected consoles over
// Server-Sent Events. It is the synchronizer's Alerter.
type StreamHandler struct {
	clients   map[string]chan streamEvent
	mu        sync.RWMutex
	source    FeedSource
	heartbeat time.Duration
	logger    zerolog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler() *StreamHandler {
	return &StreamHandler{
		clients:   make(map[string]chan streamEvent),
		heartbeat: defaultHeartbeat,
		logger:    logging.NewLogger("stream"),
		closing:   make(chan struct{}),
	}
}

// Close ends every open stream. Called when the server shuts down, since
// long-lived responses would otherwise hold graceful shutdown open.
func (sh *StreamHandler) Close() {
	sh.closeOnce.Do(func() { close(sh.closing) })
}

// SetFeedSource sets where new streams read their initial feed from
func (sh *StreamHandler) SetFeedSource(src FeedSource) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.source = src
}

// addClient safely adds a client to the map
func (sh *StreamHandler) addClient(id string, ch chan streamEvent) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.clients[id] = ch
}

// removeClient safely removes a client from the map
func (sh *StreamHandler) removeClient(id string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.clients, id)
}

// ClientCount returns the number of connected streams
func (sh *StreamHandler) ClientCount() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.clients)
}

// Publish sends the current feed to every stream
func (sh *StreamHandler) Publish(feed models.NotificationFeed) {
	sh.broadcast(streamEvent{Name: EventNotifications, Data: feed})
}

// Alert tells every stream to play the new-notification sound
func (sh *StreamHandler) Alert(newUnread int, feed models.NotificationFeed) {
	sh.broadcast(streamEvent{Name: EventAlert, Data: gin.H{
		"new_unread":   newUnread,
		"unread_count": feed.UnreadCount,
	}})
}

// SessionChanged tells streams the session ended, so open consoles leave
// for the sign-in page. Registered as a session listener.
func (sh *StreamHandler) SessionChanged(authenticated bool) {
	if authenticated {
		return
	}
	sh.broadcast(streamEvent{Name: EventSession, Data: gin.H{"authenticated": false}})
}

// broadcast never blocks: a stream that is not keeping up loses the event
func (sh *StreamHandler) broadcast(ev streamEvent) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for id, ch := range sh.clients {
		select {
		case ch <- ev:
		default:
			sh.logger.Warn().Str("client", id).Str("event", ev.Name).Msg("stream channel full, dropping event")
		}
	}
}

// HandleStream serves GET /console/stream
func (sh *StreamHandler) HandleStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	_, _ = c.Writer.WriteString(": connected\n\n")
	c.Writer.Flush()

	id := uuid.New().String()
	events := make(chan streamEvent, 16)
	sh.addClient(id, events)
	defer sh.removeClient(id)

	sh.mu.RLock()
	src := sh.source
	sh.mu.RUnlock()
	if src != nil {
		if err := writeEvent(c, streamEvent{Name: EventNotifications, Data: src.Snapshot()}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(sh.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			sh.logger.Debug().Str("client", id).Msg("stream client disconnected")
			return
		case <-sh.closing:
			return
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev := <-events:
			if err := writeEvent(c, ev); err != nil {
				return
			}
			if ev.Name == EventSession {
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, ev streamEvent) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Name, err)
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
