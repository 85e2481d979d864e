package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/adapters"
	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// Deps bundles what the HTTP surface needs: the realtime pieces plus the
// stores behind the non-realtime CRUD routes.
type Deps struct {
	Registry      *app.Registry
	Relay         *app.Relay
	Users         core.UserStore
	Conversations core.ConversationStore
	Messages      core.MessageStore
}

// SetupRouter wires REST under /api and the websocket upgrade at /ws/:userID.
func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.POST("/users", func(c *gin.Context) {
		var req struct {
			Name string `json:"userName"`
		}
		if err := c.BindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user name"})
			return
		}
		user, err := deps.Users.CreateUser(c.Request.Context(), domain.User{Name: req.Name})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	api.GET("/users/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		user, err := deps.Users.User(c.Request.Context(), domain.UserID(id))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	})

	api.GET("/users/:id/conversations", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		conversations, err := deps.Conversations.ConversationsForUser(c.Request.Context(), domain.UserID(id))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, conversations)
	})

	api.POST("/conversations", func(c *gin.Context) {
		var req struct {
			Name  string  `json:"name"`
			Users []int64 `json:"users"`
		}
		if err := c.BindJSON(&req); err != nil || len(req.Users) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation"})
			return
		}
		conv := domain.Conversation{Name: req.Name}
		for _, u := range req.Users {
			conv.Participants = append(conv.Participants, domain.UserID(u))
		}
		created, err := deps.Conversations.CreateConversation(c.Request.Context(), conv)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, created)
	})

	api.GET("/conversations/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		conv, err := deps.Conversations.Conversation(c.Request.Context(), domain.ConversationID(id))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	})

	api.PUT("/conversations/:id", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Name  string  `json:"name"`
			Users []int64 `json:"users"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation"})
			return
		}
		conv := domain.Conversation{ID: domain.ConversationID(id), Name: req.Name}
		for _, u := range req.Users {
			conv.Participants = append(conv.Participants, domain.UserID(u))
		}
		if err := deps.Conversations.UpdateConversation(c.Request.Context(), conv); err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	})

	api.GET("/conversations/:id/messages", func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		messages, err := deps.Messages.MessagesForConversation(c.Request.Context(), domain.ConversationID(id))
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, messages)
	})

	// Ops view: which users currently hold a live connection.
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": deps.Registry.Online()})
	})

	// Call settings clients pick up before dialing.
	api.GET("/rtc", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"iceServers":  cfg.ICEServers,
			"busyDelay":   cfg.BusyDelay.String(),
			"ringTimeout": cfg.RingTimeout.String(),
		})
	})

	wsCtl := adapters.NewWSController(deps.Registry, deps.Relay, cfg)
	r.GET("/ws/:userID", func(c *gin.Context) {
		wsCtl.HandleWS(ctx, c)
	})

	return r
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func notFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
