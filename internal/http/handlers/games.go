package handlers

import (
	"net/http"

	"fishka_server/internal/game"

	"github.com/gin-gonic/gin"
)

// GamesHandler exposes the catalog of registered game plugins so
// clients can populate the room settings screen.
type GamesHandler struct {
	games *game.Registry
}

func NewGamesHandler(games *game.Registry) *GamesHandler {
	return &GamesHandler{games: games}
}

type gameInfo struct {
	ID           string   `json:"id"`
	MinPlayers   int      `json:"minPlayers"`
	ConfigFields []string `json:"configFields,omitempty"`
}

func (h *GamesHandler) List(c *gin.Context) {
	ids := h.games.IDs()
	out := make([]gameInfo, 0, len(ids))
	for _, id := range ids {
		plugin, ok := h.games.Get(id)
		if !ok {
			continue
		}
		out = append(out, gameInfo{
			ID:           plugin.ID(),
			MinPlayers:   plugin.MinPlayers(),
			ConfigFields: plugin.ConfigFields(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"games": out})
}
