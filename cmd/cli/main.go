package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/imgdrop/internal/buildinfo"
	"github.com/dmitrijs2005/imgdrop/internal/client/cli"
	"github.com/dmitrijs2005/imgdrop/internal/client/config"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewConsole(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
