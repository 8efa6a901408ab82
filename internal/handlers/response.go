package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/yungbote/valence-backend/internal/platform/apierr"
)

type APIError struct {
  Message     string	`json:"message"`
  Code	      string	`json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error	      APIError	`json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

// RespondEngineError translates an engine failure into its HTTP shape.
func RespondEngineError(c *gin.Context, err error) {
  ae := apierr.FromEngine(err)
  RespondError(c, ae.Status, ae.Code, err)
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}
