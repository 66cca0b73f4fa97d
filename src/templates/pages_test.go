package templates

import (
	"testing"
	"time"

	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPageConfig(t *testing.T) {
	cfg, err := LoadPageConfig()
	require.NoError(t, err)
	assert.Equal(t, "Shop Admin", cfg.Branding.Name)
	assert.NotEmpty(t, cfg.SignIn.ExpiredNotice)
	assert.NotEmpty(t, cfg.Reset.ButtonText)
}

func TestRenderSignIn_EscapesInput(t *testing.T) {
	cfg, err := LoadPageConfig()
	require.NoError(t, err)

	html, err := RenderSignIn(SignInData{
		Brand:  cfg.Branding.Name,
		Text:   cfg.SignIn,
		Notice: cfg.SignIn.ExpiredNotice,
		Error:  "<b>Invalid credentials</b>",
		Email:  "admin@shop.test",
		Next:   "/orders",
	})
	require.NoError(t, err)
	assert.Contains(t, html, cfg.SignIn.ExpiredNotice)
	assert.Contains(t, html, "&lt;b&gt;Invalid credentials&lt;/b&gt;")
	assert.Contains(t, html, `value="/orders"`)
}

func TestRenderConsole(t *testing.T) {
	html, err := RenderConsole(ConsoleData{
		Brand: "Shop Admin",
		Admin: &models.Admin{Username: "admin"},
		Feed: models.NotificationFeed{
			UnreadCount: 1,
			Notifications: []models.NotificationView{{
				Notification: models.Notification{ID: "n1", Type: models.NotificationTypeOrder, Message: "New order", CreatedAt: time.Now()},
				Icon:         "🛍️",
			}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "/console/notifications/n1/open")
	assert.Contains(t, html, "New order")
	assert.Contains(t, html, "admin")
}

func TestRenderResetLinkText(t *testing.T) {
	text, err := RenderResetLinkText(ResetLinkData{
		Subject:       "Reset",
		Link:          "http://localhost:8080/reset-password/abc",
		ExpiryMinutes: 60,
	})
	require.NoError(t, err)
	assert.Contains(t, text, "http://localhost:8080/reset-password/abc")
	assert.Contains(t, text, "60 minutes")
}

func TestRenderReset(t *testing.T) {
	html, err := RenderReset(ResetData{Brand: "Shop Admin", Action: "/reset-password/abc", Error: "Invalid or expired token"})
	require.NoError(t, err)
	assert.Contains(t, html, `action="/reset-password/abc"`)
	assert.Contains(t, html, "Invalid or expired token")
}
