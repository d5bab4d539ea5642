package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"

	"github.com/web3tea/binlog-sentinel/config"
	"github.com/web3tea/binlog-sentinel/di"
	"github.com/web3tea/binlog-sentinel/store"
)

var positionCmd = &cli.Command{
	Name:  "position",
	Usage: "Show or reset the saved capture position",
	Flags: []cli.Flag{
		configFlag(),
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "delete the saved position so the next run starts from the beginning",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		injector := di.SetupContainer(c.String("config"))

		cfg, err := do.Invoke[*config.Config](injector)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
		}
		st, err := do.Invoke[store.Store](injector)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer st.Close()

		key := cfg.Checkpoint.Key
		if c.Bool("reset") {
			if err := st.Delete(ctx, key); err != nil {
				return cli.Exit(fmt.Sprintf("failed to reset position: %v", err), 1)
			}
			fmt.Printf("position %q reset\n", key)
			return nil
		}

		pos, ok, err := store.LoadPosition(ctx, st, key)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load position: %v", err), 1)
		}
		if !ok {
			fmt.Printf("no position saved under %q (%s store)\n", key, cfg.Checkpoint.Type)
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Key", "Store", "Segment", "Offset"})
		t.AppendRow(table.Row{key, cfg.Checkpoint.Type, pos.Segment, strconv.FormatUint(pos.Offset, 10)})
		t.Render()
		return nil
	},
}
