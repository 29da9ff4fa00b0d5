package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"fishka_server/internal/repository"

	"github.com/gin-gonic/gin"
)

// OutcomesHandler serves finished-match history for a room code.
type OutcomesHandler struct {
	outcomes *repository.OutcomeRepository
}

func NewOutcomesHandler(outcomes *repository.OutcomeRepository) *OutcomesHandler {
	return &OutcomesHandler{outcomes: outcomes}
}

func (h *OutcomesHandler) ByRoom(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if len(code) != 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	res, err := h.outcomes.ByRoom(c.Request.Context(), code, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": res})
}
