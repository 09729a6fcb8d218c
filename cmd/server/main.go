package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"pharmacy_inventory/internal/config"
	"pharmacy_inventory/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.ConfigureLogging(cfg)

	os.Exit(server.Run(cfg))
}
