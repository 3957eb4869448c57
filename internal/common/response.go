package common

import (
	"time"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Envelope is the shape of every API response.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func OK(c *gin.Context, httpStatus int, data any) {
	c.JSON(httpStatus, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func Fail(c *gin.Context, httpStatus int, code string, msg string) {
	FailBody(c, ErrorBody{Code: code, Message: msg, StatusCode: httpStatus})
}

func FailBody(c *gin.Context, body ErrorBody) {
	c.AbortWithStatusJSON(body.StatusCode, Envelope{
		Success:   false,
		Error:     &body,
		Timestamp: time.Now().UTC(),
	})
}

// FailWithData is FailBody for errors that still carry a partial result.
func FailWithData(c *gin.Context, body ErrorBody, data any) {
	c.AbortWithStatusJSON(body.StatusCode, Envelope{
		Success:   false,
		Data:      data,
		Error:     &body,
		Timestamp: time.Now().UTC(),
	})
}
