package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrProductNotFound, http.StatusNotFound},
	{domain.ErrOrderNotFound, http.StatusNotFound},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrInsufficientStock, http.StatusConflict},
	{domain.ErrAlreadyDelivered, http.StatusConflict},
	{domain.ErrDuplicateRequest, http.StatusConflict},
	{domain.ErrSelfPurchaseForbidden, http.StatusForbidden},
	{domain.ErrNotAuthorized, http.StatusForbidden},
	{domain.ErrInvalidCode, http.StatusBadRequest},
	{domain.ErrInvalidCart, http.StatusBadRequest},
	{domain.ErrInvalidListing, http.StatusBadRequest},
	{domain.ErrCodeExpired, http.StatusBadRequest},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests},
}

func statusOf(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError maps a service error to its HTTP status. Internal details stay in the log.
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		logging.From(c).Error("request failed", "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
