package main

import (
	"context"
	"log"

	"skillspire/internal/app"
	"skillspire/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	log.Printf("Listening on %s", a.Addr())
	_ = a.Router().Run(a.Addr())
}
