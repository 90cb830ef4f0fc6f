package stsserver

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ruianderson/sts-proxy/internal/logx"
)

const (
	requestIDHeaderKey = "X-Request-Id"

	ctxAction    = "sts.action"
	ctxStage     = "sts.stage"
	ctxErrorKind = "sts.error_kind"
	ctxFieldsIn  = "sts.fields_in"
	ctxFieldsOut = "sts.fields_out"
)

type contextFieldSpec struct {
	ctxKey string
	logKey string
}

var accessLogContextFieldSpecs = []contextFieldSpec{
	{ctxKey: ctxAction, logKey: "action"},
	{ctxKey: ctxStage, logKey: "stage"},
	{ctxKey: ctxErrorKind, logKey: "error_kind"},
	{ctxKey: ctxFieldsIn, logKey: "fields_in"},
	{ctxKey: ctxFieldsOut, logKey: "fields_out"},
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeaderKey))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeaderKey, id)
		c.Set(requestIDHeaderKey, id)
		c.Next()
	}
}

func requestLoggerWithColor(l *log.Logger, color bool, accessFormatter *logx.AccessLogFormatter) gin.HandlerFunc {
	if l == nil {
		l = log.New(os.Stdout, "", 0)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id": c.GetString(requestIDHeaderKey),
		}
		for _, s := range accessLogContextFieldSpecs {
			if v, ok := c.Get(s.ctxKey); ok {
				fields[s.logKey] = v
			}
		}
		l.Println(accessFormatter.Format(logx.AccessEntry{
			Time:     time.Now(),
			Status:   c.Writer.Status(),
			Latency:  time.Since(start),
			ClientIP: c.ClientIP(),
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Fields:   fields,
		}, color))
	}
}

// authMiddleware accepts the key as a Bearer token or in x-api-key. An empty
// key disables the check.
func authMiddleware(apiKey string) gin.HandlerFunc {
	expected := strings.TrimSpace(apiKey)
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := ""
		if v := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(v, "Bearer ") {
			got = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
		}
		if got == "" {
			got = strings.TrimSpace(c.GetHeader("x-api-key"))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"kind":    "Unauthorized",
				"message": "unauthorized",
			},
		})
	}
}
