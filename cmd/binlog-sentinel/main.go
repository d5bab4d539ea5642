package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "binlog-sentinel",
		Usage: "Stream row changes of a MySQL table from the binlog",
		Commands: []*cli.Command{
			runCmd,
			positionCmd,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "sentinel.toml",
		Usage:   "path of the config file (.toml, .yaml or .json)",
	}
}
