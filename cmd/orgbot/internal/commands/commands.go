package commands

import (
	"net/http"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// SettingsFlags locate the bot's YAML configuration.
type SettingsFlags struct {
	Settings  string `help:"path to the settings file" default:"/opt/settings.yaml" env:"SETTINGS_FILE_PATH" type:"path"`
	Templates string `help:"directory of message template overrides" default:"" env:"TEMPLATES_DIR_PATH"`
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
