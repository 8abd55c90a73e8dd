package main

import (
	"quickchat/internal/config"
	"quickchat/internal/db"
	clog "quickchat/internal/log"
	"quickchat/internal/router"
	"quickchat/internal/server"
	"quickchat/internal/session"
	"quickchat/internal/store"
	"quickchat/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// 本地运行支持 .env，线上环境变量由部署平台注入
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	st := store.New(gdb)
	reg := session.NewRegistry()
	hub := ws.NewHub()
	go hub.Run()
	rt := router.New(st, reg, hub, cfg.HistoryLimit)

	r := server.SetupRouter(cfg, st, hub, reg, rt)
	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
