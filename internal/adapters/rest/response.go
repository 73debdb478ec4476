package rest

import (
	"net/http"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response with the status derived from the error kind
func JSONError(c *gin.Context, err error, message string) {
	status := StatusForError(err)
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
		"kind":    shared.KindOf(err).String(),
	})
}

// StatusForError maps an error kind to an HTTP status code
func StatusForError(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindBidTooLow, shared.KindItemUnavailable, shared.KindInvalidTransition:
		return http.StatusConflict
	case shared.KindStoreTimeout, shared.KindTransactionAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
