package response

import "github.com/gin-gonic/gin"

const (
	MessageUnauthenticated = "Unauthenticated"
	MessageInvalidRequest  = "Invalid request"
	MessageUnprocessable   = "Unprocessable input"
	MessageNotFound        = "Not found"
	MessageConflict        = "Conflict"
	MessageInternal        = "An error occurred while processing your request."
)

// ErrorBody is the error shape of every endpoint.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Error: message})
}

func ErrorWithDetails(c *gin.Context, httpStatus int, message, details string) {
	c.JSON(httpStatus, ErrorBody{
		Error:   message,
		Details: details,
	})
}
