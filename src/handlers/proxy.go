package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/middleware"
)

// maxProxyBody caps request bodies relayed to the backend
const maxProxyBody = 10 << 20

// ProxyHandler relays console data requests to the backend through the
// authenticated client, so a 401 on any of them ends the session
type ProxyHandler struct {
	client *apiclient.Client
}

// NewProxyHandler creates a new passthrough handler
func NewProxyHandler(client *apiclient.Client) *ProxyHandler {
	return &ProxyHandler{client: client}
}

// HandleForward serves ANY /console/api/backend/*path
func (h *ProxyHandler) HandleForward(c *gin.Context) {
	var body io.Reader
	if c.Request.ContentLength != 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProxyBody)
	}
	resp, err := h.client.Forward(
		c.Request.Context(),
		c.Request.Method,
		c.Param("path"),
		c.Request.URL.RawQuery,
		c.Request.Header,
		body,
	)
	if err != nil {
		logger := logging.ComponentLogger("proxy", middleware.GetRequestID(c))
		logger.Warn().
			Err(err).
			Str("path", c.Param("path")).
			Msg("backend passthrough failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "backend_unavailable",
			"message": "The shop backend could not be reached",
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.Header("X-Console-Redirect", middleware.SignInURL(true, ""))
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
}
