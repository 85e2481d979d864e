package adapters

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/domain"
)

var upgrader = websocket.Upgrader{
	// TODO: restrict origins once the web client origin is settled.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSController owns the `/ws/:userID` endpoint: upgrade, registry binding
// and the two transport pumps per connection.
type WSController struct {
	Registry *app.Registry
	Relay    *app.Relay
	Cfg      *config.Config
}

func NewWSController(registry *app.Registry, relay *app.Relay, cfg *config.Config) *WSController {
	return &WSController{Registry: registry, Relay: relay, Cfg: cfg}
}

func (ctl *WSController) HandleWS(ctx context.Context, c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := domain.UserID(id)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.ws").Err(err).Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.ws").Int64("user", id).Msg("new connection")

	conn := NewWSConnection(userID, ws, ctl.Cfg.SendBuffer)
	ctl.Registry.Register(userID, conn)

	connCtx, cancel := context.WithCancel(ctx)

	conn.StartWriteLoop(connCtx, ctl.Cfg.WriteTimeout, ctl.Cfg.PingPeriod)
	conn.StartReadLoop(connCtx, ctl.Cfg.ReadLimit, ctl.Cfg.PongWait,
		func(data []byte) {
			if err := ctl.Relay.HandleFrame(connCtx, userID, data); err != nil {
				var pe *app.PersistenceError
				if errors.As(err, &pe) {
					log.Error().Str("module", "adapters.ws").Int64("user", id).Str("message_id", pe.MessageID).Err(pe.Err).Msg("message not persisted, sender must retry")
					return
				}
				log.Error().Str("module", "adapters.ws").Int64("user", id).Err(err).Msg("frame handling failed")
			}
		},
		func() {
			// An abrupt disconnect just means the recipient went offline.
			// Unregister is identity-checked, so a stale exit after a
			// replacement connection took over is a no-op.
			cancel()
			ctl.Registry.Unregister(userID, conn)
		})
}
