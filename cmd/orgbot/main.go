package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/orgbot/cmd/orgbot/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug       bool `help:"Enable debug mode." env:"ORGBOT_DEBUG"`
		Version     kong.VersionFlag
		Run         commands.RunCmd         `cmd:"" help:"Start the bot"`
		CheckConfig commands.CheckConfigCmd `cmd:"" help:"Validate settings and render every message template"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("orgbot"),
		kong.Description("Slack bot for self-service Snyk organisation creation."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
