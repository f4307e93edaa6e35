package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/guseggert/sidecarshell/hub"
	"github.com/urfave/cli/v2"
)

func listen(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	client := &hub.Client{URL: c.String("url")}
	err := client.Subscribe(ctx, func(m hub.Message) error {
		_, err := fmt.Fprintf(c.App.Writer, "%s %s\n", m.Event, m.Payload)
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func status(c *cli.Context) error {
	client := &hub.Client{URL: c.String("url")}
	st, err := client.Status(c.Context)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func send(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one line to send", 1)
	}
	client := &hub.Client{URL: c.String("url")}
	return client.SendInput(c.Context, c.Args().First())
}
