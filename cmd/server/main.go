package main

import (
	"context"
	"log"

	"github.com/nodesk/idvault/internal/server"
	"github.com/nodesk/idvault/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
