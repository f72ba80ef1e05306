package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"file_broker/server/common/log"
	"file_broker/server/common/transport/httpresp"
)

const ContextKeyUserID = "auth_user_id"

type tokenAuth interface {
	ParseAuthContext(ctx context.Context, token string) (callerID, email string, err error)
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
			return
		}
		callerID, _, err := auth.ParseAuthContext(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			log.Debugf("reject token from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
			return
		}
		c.Set(ContextKeyUserID, callerID)
		c.Next()
	}
}

// CallerID returns the identity placed on the context by AuthRequired.
func CallerID(c *gin.Context) (string, bool) {
	raw, ok := c.Get(ContextKeyUserID)
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
