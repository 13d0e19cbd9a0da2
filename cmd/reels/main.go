package main

import (
	"fmt"
	"os"

	"github.com/bobarin/reels/internal/app"
	"github.com/bobarin/reels/internal/cli"
	"github.com/bobarin/reels/internal/config"
	"github.com/bobarin/reels/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadLocal()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{
		Config: cfg,
		Build:  app.Build,
	}

	return cli.NewRootCmd(deps).Execute()
}
