package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/models"
)

// AdminKey is the context key the guard stores the signed-in admin under
const AdminKey = "admin"

// SignInPath is where unauthenticated navigation is sent
const SignInPath = "/signin"

// SessionVerifier is what the guard needs from the session
type SessionVerifier interface {
	CheckAuth(ctx context.Context) bool
	Admin() *models.Admin
	Snapshot() models.SessionSnapshot
}

// RequireSession verifies the session with the backend on every request it
// guards. The handler chain does not run, and no redirect is written, until
// the check has finished.
func RequireSession(session SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if session.CheckAuth(c.Request.Context()) {
			if admin := session.Admin(); admin != nil {
				c.Set(AdminKey, admin)
				c.Next()
				return
			}
		}

		expired := session.Snapshot().LastLogoutReason == models.LogoutReasonExpired

		if WantsHTML(c) {
			// 303 so the guarded URL does not stay in history as a POST target
			c.Redirect(http.StatusSeeOther, SignInURL(expired, nextPath(c)))
			c.Abort()
			return
		}

		body := gin.H{
			"error":    "authentication required",
			"redirect": SignInPath,
		}
		if expired {
			body["reason"] = "expired"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, body)
	}
}

// SignInURL builds the sign-in location, flagging an expired session and
// carrying the page to return to
func SignInURL(expired bool, next string) string {
	q := url.Values{}
	if expired {
		q.Set("reason", "expired")
	}
	if next != "" && next != "/" {
		q.Set("next", next)
	}
	if len(q) == 0 {
		return SignInPath
	}
	return SignInPath + "?" + q.Encode()
}

// GetAdmin returns the admin the guard admitted, or nil
func GetAdmin(c *gin.Context) *models.Admin {
	if v, ok := c.Get(AdminKey); ok {
		if admin, ok := v.(*models.Admin); ok {
			return admin
		}
	}
	return nil
}

// SafeNext returns next when it is a local path, otherwise "/"
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

func nextPath(c *gin.Context) string {
	if c.Request.Method != http.MethodGet {
		return ""
	}
	return c.Request.URL.RequestURI()
}

// WantsHTML reports whether c is a page navigation rather than an API or
// stream request
func WantsHTML(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/console/api/") {
		return false
	}
	if c.GetHeader("X-Requested-With") != "" {
		return false
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEHTML
}
