package server

import (
  "strings"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/valence-backend/internal/platform/ctxutil"
  "github.com/yungbote/valence-backend/internal/platform/logger"
)

const (
  headerTraceID   = "X-Trace-Id"
  headerRequestID = "X-Request-Id"
)

func AttachTraceContext() gin.HandlerFunc {
  return func(c *gin.Context) {
    reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
    if reqID == "" {
      reqID = uuid.New().String()
    }
    traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
    if traceID == "" {
      traceID = uuid.New().String()
    }
    ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
      TraceID:   traceID,
      RequestID: reqID,
    })
    c.Request = c.Request.WithContext(ctx)
    c.Set("trace_id", traceID)
    c.Set("request_id", reqID)
    c.Writer.Header().Set(headerTraceID, traceID)
    c.Writer.Header().Set(headerRequestID, reqID)
    c.Next()
  }
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
  return func(c *gin.Context) {
    start := time.Now()
    c.Next()

    if log == nil {
      return
    }

    status := c.Writer.Status()
    path := c.FullPath()
    if path == "" {
      path = c.Request.URL.Path
    }
    td := ctxutil.GetTraceData(c.Request.Context())

    fields := []interface{}{
      "method", strings.ToUpper(c.Request.Method),
      "path", path,
      "status", status,
      "duration_ms", time.Since(start).Milliseconds(),
    }
    if td != nil {
      if td.TraceID != "" {
        fields = append(fields, "trace_id", td.TraceID)
      }
      if td.RequestID != "" {
        fields = append(fields, "request_id", td.RequestID)
      }
    }

    switch {
    case status >= 500:
      log.Error("HTTP request", fields...)
    case status >= 400:
      log.Warn("HTTP request", fields...)
    default:
      log.Info("HTTP request", fields...)
    }
  }
}
