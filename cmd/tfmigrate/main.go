// tfmigrate applies the file_record schema migrations for the database
// configured in the given config file.
package main

import (
	"flag"
	"log"

	"github.com/fenwehome/telegram-files/internal/config"
	"github.com/fenwehome/telegram-files/internal/logger"
	"github.com/fenwehome/telegram-files/internal/storage/sqlstore"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger.Initialize(cfg.Log.Level, cfg.Log.JSON)

	store, err := sqlstore.New(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Cleanup()

	if err := store.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}
