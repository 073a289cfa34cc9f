package main

import (
	"context"
	"log"

	"github.com/cardswap/cardswap-backend/internal/config"
	"github.com/cardswap/cardswap-backend/internal/db"
	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	// Local development only; production injects env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	gdb, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	if err := gdb.AutoMigrate(
		&model.Card{},
		&model.Match{},
		&model.TradeProposal{},
		&model.ShippingAddress{},
		&model.Conversation{},
		&model.Message{},
		&model.Notification{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	srv, err := server.New(ctx, cfg, gdb)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	log.Fatal(srv.Start(":" + cfg.Port))
}
