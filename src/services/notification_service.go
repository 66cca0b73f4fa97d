package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/metrics"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the feed is fetched while authenticated
const DefaultPollInterval = 30 * time.Second

// AuthSource is the synchronizer's view of the session
type AuthSource interface {
	IsAuthenticated() bool
	OnChange(fn func(authenticated bool))
}

// Alerter receives cache updates. Alert is only called once the operator has
// interacted with the console.
type Alerter interface {
	Publish(feed models.NotificationFeed)
	Alert(newUnread int, feed models.NotificationFeed)
}

// readOverride is a local read flag the server may not reflect yet. While
// pending > 0 the confirmation is in flight; afterwards seq orders it against
// fetches.
type readOverride struct {
	seq     uint64
	pending int
}

// NotificationConfig configures the synchronizer
type NotificationConfig struct {
	PollInterval time.Duration
	Router       *NotificationRouter
}

// NotificationService keeps a local copy of the notification feed in step
// with the backend while the session is authenticated.
//
// Read flags set locally survive fetches that started before the backend
// confirmed them. A fetch started after the confirmation is authoritative,
// and once it has landed, results of fetches started before it are dropped.
type NotificationService struct {
	client  *apiclient.Client
	auth    AuthSource
	alerter Alerter
	router  *NotificationRouter
	logger  zerolog.Logger

	interval time.Duration

	mu         sync.Mutex
	items      []models.Notification
	seq        uint64
	appliedSeq uint64
	epoch      uint64
	overrides  map[string]*readOverride
	allRead    *readOverride
	lastSynced time.Time

	interacted atomic.Bool
	authGen    atomic.Uint64
	signal     chan struct{}
}

// NewNotificationService creates a synchronizer. client should be a dedicated
// authenticated client bound to the same session as auth.
func NewNotificationService(client *apiclient.Client, auth AuthSource, alerter Alerter, cfg NotificationConfig) *NotificationService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Router == nil {
		cfg.Router = DefaultNotificationRouter()
	}

	s := &NotificationService{
		client:    client,
		auth:      auth,
		alerter:   alerter,
		router:    cfg.Router,
		logger:    logging.NewLogger("notifications"),
		interval:  cfg.PollInterval,
		overrides: make(map[string]*readOverride),
		signal:    make(chan struct{}, 1),
	}

	auth.OnChange(func(bool) {
		s.authGen.Add(1)
		select {
		case s.signal <- struct{}{}:
		default:
		}
	})
	return s
}

// Run owns the polling lifecycle until ctx is done: a poll loop runs exactly
// while the session is authenticated and restarts on every new session.
func (s *NotificationService) Run(ctx context.Context) {
	var (
		cancelLoop context.CancelFunc
		loopDone   chan struct{}
		loopGen    uint64
	)

	stop := func() {
		if cancelLoop == nil {
			return
		}
		cancelLoop()
		<-loopDone
		cancelLoop, loopDone = nil, nil
	}

	reconcile := func() {
		gen := s.authGen.Load()
		authenticated := s.auth.IsAuthenticated()

		if cancelLoop != nil && (!authenticated || gen != loopGen) {
			stop()
			s.reset()
			s.logger.Info().Msg("notification polling stopped")
		}
		if !authenticated {
			s.reset()
			return
		}
		if cancelLoop == nil {
			epoch := s.reset()
			loopGen = gen
			loopCtx, cancel := context.WithCancel(ctx)
			cancelLoop, loopDone = cancel, make(chan struct{})
			go s.poll(loopCtx, epoch, loopDone)
			s.logger.Info().Dur("interval", s.interval).Msg("notification polling started")
		}
	}

	reconcile()
	for {
		select {
		case <-ctx.Done():
			stop()
			s.logger.Info().Msg("notification synchronizer stopped")
			return
		case <-s.signal:
			reconcile()
		}
	}
}

func (s *NotificationService) poll(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	s.refresh(ctx, epoch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, epoch)
		}
	}
}

// reset empties the cache and starts a new epoch, so results from loops of
// an earlier session are discarded. Returns the new epoch.
func (s *NotificationService) reset() uint64 {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	changed := len(s.items) > 0
	s.items = nil
	s.overrides = make(map[string]*readOverride)
	s.allRead = nil
	s.lastSynced = time.Time{}
	feed := s.feedLocked()
	s.mu.Unlock()

	if changed {
		s.publish(feed)
	}
	return epoch
}

// Refresh fetches the feed once, outside the poll schedule
func (s *NotificationService) Refresh(ctx context.Context) error {
	if !s.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.refresh(ctx, epoch)
}

func (s *NotificationService) refresh(ctx context.Context, epoch uint64) error {
	s.mu.Lock()
	s.seq++
	startSeq := s.seq
	s.mu.Unlock()

	items, err := s.fetch(ctx)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		metrics.NotificationPolls.WithLabelValues("discarded").Inc()
		return nil
	}
	if err != nil {
		// Keep the last good cache; notifications are best effort
		s.mu.Unlock()
		metrics.NotificationPolls.WithLabelValues("error").Inc()
		s.logger.Debug().Err(err).Msg("notification fetch failed")
		return err
	}

	if startSeq < s.appliedSeq {
		// A newer fetch already landed; this one may predate confirmed reads
		s.mu.Unlock()
		metrics.NotificationPolls.WithLabelValues("discarded").Inc()
		return nil
	}
	s.appliedSeq = startSeq

	prevUnread := unreadOf(s.items)
	s.applyOverridesLocked(items, startSeq)
	s.items = items
	s.lastSynced = time.Now()
	unread := unreadOf(items)
	feed := s.feedLocked()
	s.mu.Unlock()

	metrics.NotificationPolls.WithLabelValues("ok").Inc()
	s.publish(feed)

	if unread > prevUnread {
		s.alert(unread-prevUnread, feed)
	}
	return nil
}

// fetch reads the feed. Anything but a JSON array is a failed fetch.
func (s *NotificationService) fetch(ctx context.Context) ([]models.Notification, error) {
	var raw json.RawMessage
	if err := s.client.Get(ctx, "/admin/notifications", &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: notifications payload is not an array", apiclient.ErrMalformedResponse)
	}

	var items []models.Notification
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", apiclient.ErrMalformedResponse, err)
	}
	return items, nil
}

// applyOverridesLocked re-applies local read flags to a fetched set and drops
// the ones the fetch already reflects
func (s *NotificationService) applyOverridesLocked(items []models.Notification, startSeq uint64) {
	holds := func(o *readOverride) bool {
		return o != nil && (o.pending > 0 || o.seq > startSeq)
	}

	allRead := holds(s.allRead)
	for i := range items {
		if items[i].Read {
			continue
		}
		if allRead || holds(s.overrides[items[i].ID]) {
			items[i].Read = true
		}
	}

	if s.allRead != nil && !holds(s.allRead) {
		s.allRead = nil
	}
	for id, o := range s.overrides {
		if !holds(o) {
			delete(s.overrides, id)
		}
	}
}

// MarkAsRead flips one notification to read locally, then asks the backend
// to confirm. The local flag stays even if confirmation fails.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotificationNotFound
	}
	s.items[idx].Read = true
	o := s.overrides[id]
	if o == nil {
		o = &readOverride{}
		s.overrides[id] = o
	}
	o.pending++
	epoch := s.epoch
	feed := s.feedLocked()
	s.mu.Unlock()

	s.publish(feed)

	err := s.client.Patch(ctx, "/admin/notifications/"+url.PathEscape(id)+"/read", nil, nil)
	s.settle(o, epoch)
	if err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id).Msg("mark as read not confirmed")
		return wrapConfirm(err)
	}
	return nil
}

// MarkAllAsRead flips every cached notification to read, then asks the
// backend to confirm. Calling it again is harmless.
func (s *NotificationService) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
	}
	o := s.allRead
	if o == nil {
		o = &readOverride{}
		s.allRead = o
	}
	o.pending++
	epoch := s.epoch
	feed := s.feedLocked()
	s.mu.Unlock()

	s.publish(feed)

	err := s.client.Patch(ctx, "/admin/notifications/read-all", nil, nil)
	s.settle(o, epoch)
	if err != nil {
		s.logger.Warn().Err(err).Msg("mark all as read not confirmed")
		return wrapConfirm(err)
	}
	return nil
}

// settle ends a confirmation and stamps it, so only fetches started from
// now on may override it
func (s *NotificationService) settle(o *readOverride, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	o.pending--
	s.seq++
	o.seq = s.seq
}

// Open resolves where a click on notification id leads, marking it read
// first when it is unread. A failed confirmation does not block navigation.
func (s *NotificationService) Open(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return "", ErrNotificationNotFound
	}
	n := s.items[idx]
	s.mu.Unlock()

	if !n.Read {
		if err := s.MarkAsRead(ctx, id); err != nil {
			s.logger.Debug().Err(err).Str("notification_id", id).Msg("opened notification not confirmed as read")
		}
	}
	return s.router.Route(n), nil
}

// Destinations lists the console paths notifications can open
func (s *NotificationService) Destinations() []string {
	return s.router.Paths()
}

// Interact records the first operator interaction. From then on alerts are
// delivered; the gate never closes again.
func (s *NotificationService) Interact() {
	if s.interacted.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("audio alerts enabled")
		s.mu.Lock()
		feed := s.feedLocked()
		s.mu.Unlock()
		s.publish(feed)
	}
}

// AlertsEnabled reports whether the operator has interacted yet
func (s *NotificationService) AlertsEnabled() bool {
	return s.interacted.Load()
}

// Snapshot returns a copy of the cached feed
func (s *NotificationService) Snapshot() models.NotificationFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedLocked()
}

func (s *NotificationService) alert(newUnread int, feed models.NotificationFeed) {
	if !s.interacted.Load() {
		metrics.NotificationAlerts.WithLabelValues("suppressed").Inc()
		s.logger.Debug().Int("new_unread", newUnread).Msg("alert suppressed until first interaction")
		return
	}
	metrics.NotificationAlerts.WithLabelValues("delivered").Inc()
	if s.alerter != nil {
		s.alerter.Alert(newUnread, feed)
	}
}

func (s *NotificationService) publish(feed models.NotificationFeed) {
	metrics.UnreadNotifications.Set(float64(feed.UnreadCount))
	if s.alerter != nil {
		s.alerter.Publish(feed)
	}
}

func (s *NotificationService) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *NotificationService) feedLocked() models.NotificationFeed {
	views := make([]models.NotificationView, len(s.items))
	for i, n := range s.items {
		views[i] = models.NotificationView{Notification: n, Icon: n.Type.Icon()}
	}
	feed := models.NotificationFeed{
		Notifications: views,
		UnreadCount:   unreadOf(s.items),
		AlertsEnabled: s.interacted.Load(),
	}
	if !s.lastSynced.IsZero() {
		synced := s.lastSynced
		feed.LastSyncedAt = &synced
	}
	return feed
}

// unreadOf is the only way the unread count is computed, so it always
// matches the cache and cannot go negative
func unreadOf(items []models.Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}
