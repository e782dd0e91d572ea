package main

import (
	"log"

	"github.com/treeprice/catalog-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		application.Log.Fatal("server exited", "error", err)
	}
}
