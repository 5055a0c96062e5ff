// Package api exposes the engine facade over HTTP: lobby lifecycle, intent
// submission, snapshot reads, and the websocket event stream.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/database"
	"github.com/villageois/garou/internal/game"
	"github.com/villageois/garou/internal/models"
	ws "github.com/villageois/garou/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Configure properly in production
	},
}

type Handler struct {
	db     *database.Database
	engine *game.Engine
	wsHub  *ws.Hub
}

func NewHandler(db *database.Database, engine *game.Engine, wsHub *ws.Hub) *Handler {
	return &Handler{db: db, engine: engine, wsHub: wsHub}
}

// Router builds the gin engine with all routes mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.HandleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/games", h.ListGames)
		api.POST("/games", h.CreateGame)
		api.GET("/games/:gameId", h.GetSnapshot)
		api.GET("/games/:gameId/timer", h.GetTimer)
		api.POST("/games/:gameId/join", h.JoinLobby)
		api.POST("/games/:gameId/leave", h.LeaveLobby)
		api.POST("/games/:gameId/start", h.StartGame)
		api.POST("/games/:gameId/intents", h.SubmitIntent)
		api.POST("/games/:gameId/end", h.EndGame)
		api.POST("/games/:gameId/force-end", h.ForceEnd)
	}
	return r
}

// respond maps a tagged engine result to an HTTP response.
func respond(c *gin.Context, res models.Result) {
	if res.OK {
		c.JSON(http.StatusOK, res)
		return
	}
	status := http.StatusBadRequest
	switch res.Reason {
	case models.ReasonGameNotFound:
		status = http.StatusNotFound
	case models.ReasonGameExists:
		status = http.StatusConflict
	case models.ReasonNotAdmin:
		status = http.StatusForbidden
	case models.ReasonBusy:
		status = http.StatusTooManyRequests
	case models.ReasonStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

// ============================================================================
// LOBBY HANDLERS
// ============================================================================

type createGameRequest struct {
	GameID   string            `json:"game_id" binding:"required"`
	GuildID  string            `json:"guild_id"`
	Rules    *models.Rules     `json:"rules,omitempty"`
	Channels map[string]string `json:"channels,omitempty"`
}

func (h *Handler) CreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respond(c, h.engine.CreateGame(c.Request.Context(), req.GameID, req.GuildID, req.Rules, req.Channels))
}

type joinRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Username string    `json:"username" binding:"required"`
}

func (h *Handler) JoinLobby(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respond(c, h.engine.JoinLobby(c.Request.Context(), c.Param("gameId"), req.UserID, req.Username))
}

type leaveRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *Handler) LeaveLobby(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respond(c, h.engine.LeaveLobby(c.Request.Context(), c.Param("gameId"), req.UserID))
}

type startRequest struct {
	RolePool []models.Role `json:"role_pool" binding:"required"`
}

func (h *Handler) StartGame(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respond(c, h.engine.StartGame(c.Request.Context(), c.Param("gameId"), req.RolePool))
}

// ============================================================================
// GAME HANDLERS
// ============================================================================

func (h *Handler) SubmitIntent(c *gin.Context) {
	var in models.Intent
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.GameID = c.Param("gameId")
	respond(c, h.engine.Submit(c.Request.Context(), in))
}

func (h *Handler) GetSnapshot(c *gin.Context) {
	view := h.engine.Snapshot(c.Param("gameId"))
	if view == nil {
		c.JSON(http.StatusNotFound, models.Fail(models.ReasonGameNotFound))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetTimer(c *gin.Context) {
	view := h.engine.Snapshot(c.Param("gameId"))
	if view == nil {
		c.JSON(http.StatusNotFound, models.Fail(models.ReasonGameNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": view.Timer})
}

func (h *Handler) ListGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": h.engine.Games()})
}

func (h *Handler) EndGame(c *gin.Context) {
	respond(c, h.engine.EndGame(c.Request.Context(), c.Param("gameId")))
}

type forceEndRequest struct {
	Actor models.Actor `json:"actor"`
}

func (h *Handler) ForceEnd(c *gin.Context) {
	var req forceEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respond(c, h.engine.ForceEnd(c.Request.Context(), c.Param("gameId"), req.Actor))
}

// ============================================================================
// HEALTH
// ============================================================================

func (h *Handler) Health(c *gin.Context) {
	if !h.engine.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Ready(c *gin.Context) {
	if !h.engine.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	if h.db != nil {
		if err := h.db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ============================================================================
// WEBSOCKET HANDLER
// ============================================================================

// HandleWebSocket upgrades the connection and binds it to a game's event
// stream.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	gameID := c.Query("game_id")
	if gameID == "" || h.engine.Snapshot(gameID) == nil {
		c.JSON(http.StatusNotFound, models.Fail(models.ReasonGameNotFound))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn, gameID)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
