package api

import (
	"errors"
	"net/http"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/docindex"
	"foodietrack/backend/go/internal/identity"
	"foodietrack/backend/go/pkg/httpmiddleware"
	"foodietrack/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 创建一个 Gin 中间件，用于验证 Bearer 令牌并把用户 ID 写入上下文。
func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(httpmiddleware.ContextKeyUserID, id.UserID)
		c.Next()
	}
}

// currentUser 返回认证中间件写入的用户 ID。
func currentUser(c *gin.Context) string {
	return c.GetString(httpmiddleware.ContextKeyUserID)
}

// abortWithError 把错误类别映射为状态码。5xx 的细节只写日志，不返回给客户端。
func abortWithError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if isDisabled(err) {
		status = http.StatusServiceUnavailable
	}
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Msg != "" {
		msg = ae.Msg
	}
	if status >= http.StatusInternalServerError {
		logger.New(serviceName, httpmiddleware.TraceID(c), currentUser(c)).WithErr(err).Error("请求处理失败")
		if status != http.StatusServiceUnavailable {
			msg = http.StatusText(status)
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func isDisabled(err error) bool {
	return errors.Is(err, docindex.ErrDisabled)
}
