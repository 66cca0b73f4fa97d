package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/khabaroff/shop-admin-console/src/devbackend"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markResponse struct {
	Confirmed bool                    `json:"confirmed"`
	Feed      models.NotificationFeed `json:"feed"`
}

// seededConsole is a signed-in console whose cache holds the seed feed
func seededConsole(t *testing.T) (*console, models.NotificationFeed) {
	t.Helper()
	cs := newConsole(t)
	devbackend.SeedNotifications(cs.backend)
	cs.signIn(t)

	w := cs.api(t, http.MethodPost, "/console/api/notifications/refresh", nil)
	assertStatusCode(t, w, http.StatusOK)
	var feed models.NotificationFeed
	decodeJSON(t, w, &feed)
	require.Len(t, feed.Notifications, 4)
	return cs, feed
}

func findByMessage(t *testing.T, feed models.NotificationFeed, prefix string) models.NotificationView {
	t.Helper()
	for _, n := range feed.Notifications {
		if len(n.Message) >= len(prefix) && n.Message[:len(prefix)] == prefix {
			return n
		}
	}
	t.Fatalf("no notification starting with %q", prefix)
	return models.NotificationView{}
}

func TestRefreshAndList(t *testing.T) {
	cs, feed := seededConsole(t)

	assert.Equal(t, 4, feed.UnreadCount)
	assert.NotNil(t, feed.LastSyncedAt)
	assert.False(t, feed.AlertsEnabled)
	payment := findByMessage(t, feed, "Payment")
	assert.Equal(t, models.NotificationTypePayment.Icon(), payment.Icon)

	w := cs.api(t, http.MethodGet, "/console/api/notifications", nil)
	assertStatusCode(t, w, http.StatusOK)
	var listed models.NotificationFeed
	decodeJSON(t, w, &listed)
	assert.Equal(t, feed.UnreadCount, listed.UnreadCount)
}

func TestMarkReadConfirmed(t *testing.T) {
	cs, feed := seededConsole(t)
	target := findByMessage(t, feed, "New order")

	w := cs.api(t, http.MethodPatch, "/console/api/notifications/"+target.ID+"/read", nil)

	assertStatusCode(t, w, http.StatusOK)
	var resp markResponse
	decodeJSON(t, w, &resp)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, 3, resp.Feed.UnreadCount)

	for _, n := range cs.backend.Notifications() {
		if n.ID == target.ID {
			assert.True(t, n.Read)
		}
	}
}

func TestMarkReadUnknown(t *testing.T) {
	cs, _ := seededConsole(t)

	w := cs.api(t, http.MethodPatch, "/console/api/notifications/unknown/read", nil)

	assertStatusCode(t, w, http.StatusNotFound)
	assertJSONError(t, w, "not_found")
}

func TestMarkAllRead(t *testing.T) {
	cs, _ := seededConsole(t)

	for i := 0; i < 2; i++ {
		w := cs.api(t, http.MethodPatch, "/console/api/notifications/read-all", nil)
		assertStatusCode(t, w, http.StatusOK)
		var resp markResponse
		decodeJSON(t, w, &resp)
		assert.True(t, resp.Confirmed)
		assert.Equal(t, 0, resp.Feed.UnreadCount)
	}

	// a fresh fetch agrees with the local state
	w := cs.api(t, http.MethodPost, "/console/api/notifications/refresh", nil)
	var feed models.NotificationFeed
	decodeJSON(t, w, &feed)
	assert.Equal(t, 0, feed.UnreadCount)
}

func TestOpenRoutesAndMarksRead(t *testing.T) {
	cs, feed := seededConsole(t)

	cases := []struct {
		prefix string
		want   string
	}{
		{"Offline sale", "/offline-sales"},
		{"New order", "/orders"},
		{"Payment", "/payments"},
		{"Inventory", "/dashboard"},
	}
	for _, tc := range cases {
		n := findByMessage(t, feed, tc.prefix)

		w := cs.page(http.MethodGet, "/console/notifications/"+n.ID+"/open", "")

		assertStatusCode(t, w, http.StatusSeeOther)
		assert.Equal(t, tc.want, w.Header().Get("Location"), tc.prefix)

		// the destination is a guarded console section
		w = cs.page(http.MethodGet, tc.want, "")
		assertStatusCode(t, w, http.StatusOK)
		assert.Contains(t, w.Body.String(), `<h1 id="section">`+strings.TrimPrefix(tc.want, "/")+`</h1>`)
	}

	assert.Equal(t, 0, cs.notifications.Snapshot().UnreadCount)
}

func TestOpenUnknown(t *testing.T) {
	cs, _ := seededConsole(t)

	w := cs.page(http.MethodGet, "/console/notifications/nope/open", "")

	assertStatusCode(t, w, http.StatusNotFound)
}

func TestInteractionEnablesAlerts(t *testing.T) {
	cs, _ := seededConsole(t)

	w := cs.api(t, http.MethodPost, "/console/api/interaction", nil)
	assertStatusCode(t, w, http.StatusNoContent)

	w = cs.api(t, http.MethodGet, "/console/api/notifications", nil)
	var feed models.NotificationFeed
	decodeJSON(t, w, &feed)
	assert.True(t, feed.AlertsEnabled)
}

func TestRefreshAfterBackendRevocation(t *testing.T) {
	cs, _ := seededConsole(t)
	revokeAtBackend(t, cs)

	w := cs.api(t, http.MethodPost, "/console/api/notifications/refresh", nil)

	assertStatusCode(t, w, http.StatusUnauthorized)
	assert.False(t, cs.session.IsAuthenticated())
}

func TestSectionPagesAreGuarded(t *testing.T) {
	cs := newConsole(t)

	w := cs.page(http.MethodGet, "/orders", "")

	assertStatusCode(t, w, http.StatusSeeOther)
	assert.Equal(t, "/signin?next=%2Forders", w.Header().Get("Location"))
}

func TestSectionPathsSkipReservedRoutes(t *testing.T) {
	got := sectionPaths([]string{"/", "/orders", "/console/api/x", "/signin", "/health/deep", "/reports/:id", "/reports"})

	assert.Equal(t, []string{"/orders", "/reports"}, got)
}
