package middleware

import "github.com/gin-gonic/gin"

// Cache-Control values for the exam API.
const (
	// NoStore keeps live attempt state out of browser and proxy caches.
	NoStore = "no-store"
	// PrivateImmutable suits a graded result, which never changes.
	PrivateImmutable = "private, max-age=300, immutable"
)

// CacheControl sets the Cache-Control header on every response it wraps.
func CacheControl(value string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
