package main

import (
	"fmt"
	"log"
	"os"

	"github.com/guseggert/sidecarshell/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sidecarshell",
		Usage: "provisions, runs and relays the backend sidecar",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path of a YAML config file.",
				EnvVars: []string{"SIDECARSHELL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "runtime",
				Usage: "Path or name of the runtime binary. Defaults to the bundled one, then PATH.",
			},
			&cli.StringFlag{
				Name:  "resource-dir",
				Usage: "Resource root holding the api bundle (production builds).",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Per-install data dir where the backend environment lives (production builds).",
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the event hub to listen on.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error].",
			},
			&cli.BoolFlag{
				Name:  "skip-sync-when-current",
				Usage: "Skip the environment sync when the manifest has not changed since the last one.",
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "listen",
				Usage:  "print the events of a running shell",
				Flags:  []cli.Flag{hubURLFlag()},
				Action: listen,
			},
			{
				Name:   "status",
				Usage:  "print the status of a running shell",
				Flags:  []cli.Flag{hubURLFlag()},
				Action: status,
			},
			{
				Name:      "send",
				Usage:     "write a line to the stdin of a running shell's sidecar",
				ArgsUsage: "<line>",
				Flags:     []cli.Flag{hubURLFlag()},
				Action:    send,
			},
		},
	}
}

func hubURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "url",
		Usage: "Base URL of the shell's event hub.",
		Value: fmt.Sprintf("http://%s", config.DefaultListenAddr),
	}
}

// loadConfig reads the config file and applies the flags that were set over it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("runtime") {
		cfg.Runtime = c.String("runtime")
	}
	if c.IsSet("resource-dir") {
		cfg.ResourceDir = c.String("resource-dir")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("listen-addr") {
		cfg.ListenAddr = c.String("listen-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("skip-sync-when-current") {
		cfg.SkipSyncWhenCurrent = c.Bool("skip-sync-when-current")
	}
	err = cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
