package server

import (
	"net/http"
	"strconv"
	"time"

	"quickchat/internal/config"
	"quickchat/internal/metrics"
	"quickchat/internal/mw"
	"quickchat/internal/router"
	"quickchat/internal/session"
	"quickchat/internal/store"
	"quickchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, st *store.Store, hub *ws.Hub, reg *session.Registry, rt *router.Router) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免静态页和 REST 接口被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.GET("/messages", func(c *gin.Context) {
		limitStr := c.Query("limit")
		if limitStr == "" {
			limitStr = strconv.Itoa(cfg.HistoryLimit)
		}
		limit, _ := strconv.Atoi(limitStr)
		if limit <= 0 || limit > 200 {
			limit = cfg.HistoryLimit
		}
		msgs, err := st.ListRecent(limit)
		if err != nil {
			log.Error().Err(err).Msg("list messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}
		type msgDTO struct {
			Type      string    `json:"type"`
			ID        uint      `json:"id"`
			Name      string    `json:"name"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"created_at"`
		}
		out := make([]msgDTO, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, msgDTO{Type: "chat_message", ID: m.ID, Name: m.Name, Text: m.Text, CreatedAt: m.CreatedAt})
		}
		c.JSON(http.StatusOK, gin.H{"messages": out})
	})

	api.GET("/participants", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": hub.Online(), "participants": reg.Snapshot()})
	})

	r.GET("/ws", ws.Serve(hub, reg, rt))

	r.StaticFile("/", "./web/index.html")
	r.Static("/static", "./web/static")

	return r
}
