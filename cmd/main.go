package main

import (
	"log"

	"github.com/tidecharts/tilecache/internal/app"
	"github.com/tidecharts/tilecache/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
