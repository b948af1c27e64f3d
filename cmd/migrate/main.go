package main

import (
	"log"

	"filedepot/config"
	"filedepot/internal/domain/session"
	"filedepot/pkg/database"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg)

	// Run Raw Migrations (Extensions, Enums)
	if err := database.ApplyRawMigrations("migrations"); err != nil {
		log.Fatalf("Failed to apply raw migrations: %v", err)
	}

	// Run GORM AutoMigrate for Tables
	if err := database.DB.AutoMigrate(
		&session.UploadSession{},
		&session.ChunkReceipt{},
	); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	log.Println("Migrations applied")
}
