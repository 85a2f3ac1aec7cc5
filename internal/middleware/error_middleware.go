package middleware

import (
	"vox-chat/internal/transport/httpdto"
	"vox-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.Errorf("request error: %s", err.Error())
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(c.Writer.Status(), httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
