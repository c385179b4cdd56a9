package main

import (
	"log"

	"github.com/bru-digital/qteria/internal/bootstrap"
	"github.com/bru-digital/qteria/internal/shared/config"
	"github.com/bru-digital/qteria/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg, bootstrap.RoleAPI)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
