package middleware

import (
	"net/http"

	"platewatch/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// httpStatus maps a failure class to the status the local API reports.
func httpStatus(class errors.Class) int {
	switch class {
	case errors.ClassProtocol:
		return http.StatusBadRequest
	case errors.ClassTimeout:
		return http.StatusGatewayTimeout
	case errors.ClassTransport, errors.ClassNegotiation:
		return http.StatusBadGateway
	case errors.ClassTerminalMedia:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware handles application errors and returns appropriate HTTP responses
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.Get(err)
		if appErr != nil {
			logger.Errorw("application error",
				"class", appErr.Class,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.JSON(httpStatus(appErr.Class), gin.H{
				"error":   string(appErr.Class),
				"message": appErr.Visible(),
			})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL",
			"message": "Internal server error",
		})
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "INTERNAL",
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
