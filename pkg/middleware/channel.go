package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderClientChannel = "X-Client-Channel"

type channelKey struct{}

var ChannelContextKey = channelKey{}

var knownChannels = map[string]bool{
	"web":     true,
	"android": true,
	"ios":     true,
	"api":     true,
}

func deriveChannel(header string) string {
	ch := strings.ToLower(strings.TrimSpace(header))
	if knownChannels[ch] {
		return ch
	}
	return "api"
}

// Channel tags the request context with the client channel taken from
// X-Client-Channel. Unknown values fall back to "api".
func Channel() gin.HandlerFunc {
	return func(c *gin.Context) {
		ch := deriveChannel(c.GetHeader(HeaderClientChannel))
		ctx := context.WithValue(c.Request.Context(), ChannelContextKey, ch)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func FromChannel(ctx context.Context, want string) bool {
	ch, ok := ctx.Value(ChannelContextKey).(string)
	return ok && ch == want
}

func GetChannel(ctx context.Context) string {
	ch, ok := ctx.Value(ChannelContextKey).(string)
	if !ok {
		return "api"
	}
	return ch
}
