package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

// writeError maps service errors onto the wire contract. Anything not
// recognised is logged and reported as a generic 500.
func writeError(c *gin.Context, err error, op string) {
	var partial *app.PartialIngestionError
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.MessageUnauthenticated)
	case errors.Is(err, app.ErrMalformedInput):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, response.MessageUnprocessable, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.MessageNotFound)
	case errors.Is(err, app.ErrDuplicateTurn), errors.Is(err, app.ErrChatBusy):
		response.ErrorWithDetails(c, http.StatusConflict, response.MessageConflict, err.Error())
	case errors.As(err, &partial):
		log.Printf("%s failed: %v", op, err)
		response.ErrorWithDetails(c, http.StatusInternalServerError, response.MessageInternal,
			fmt.Sprintf("%d of %d chunks were indexed before the failure", partial.Succeeded, partial.Total))
	default:
		log.Printf("%s failed: %v", op, err)
		response.Error(c, http.StatusInternalServerError, response.MessageInternal)
	}
}

func identity(c *gin.Context) (userID, credential string) {
	return c.GetString(middleware.ContextUserIDKey), c.GetString(middleware.ContextCredentialKey)
}
