package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

var untracedPrefixes = []string{"/health", "/ready", "/metrics", "/swagger/"}

// GinMiddleware traces API requests. Health checks, metrics scrapes and
// swagger assets are skipped.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(traced))
}

func traced(r *http.Request) bool {
	for _, prefix := range untracedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}

// OrgAttributes tags the request span with the :orgId route parameter.
func OrgAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID := c.Param("orgId"); orgID != "" {
			trace.SpanFromContext(c.Request.Context()).SetAttributes(AttrOrgID.String(orgID))
		}
		c.Next()
	}
}
