package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/canvasarchive/internal"
	"github.com/starford/canvasarchive/internal/mcpserver"
	pkgconfig "github.com/starford/canvasarchive/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withComponents runs fn against an opened vault. Logs go to stderr so that
// stdout carries only command output.
func withComponents(cmd *cli.Command, fn func(c *internal.Components) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	c, err := internal.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func archive(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("archive: at least one canvas path is required")
	}
	dryRun := cmd.Bool("dry-run")
	return withComponents(cmd, func(c *internal.Components) error {
		for _, p := range paths {
			if dryRun {
				res, err := c.Service.Preview(ctx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "==> %s (%d cards)\n%s", res.Archive, res.Cards, res.Document)
				continue
			}
			res, err := c.Service.Archive(ctx, p)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
		}
		return nil
	})
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	return withComponents(cmd, func(c *internal.Components) error {
		n, err := c.Service.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d canvases changed\n", n)
		return nil
	})
}

func outline(ctx context.Context, cmd *cli.Command) error {
	p := cmd.Args().First()
	if p == "" {
		return errors.New("outline: path is required")
	}
	return withComponents(cmd, func(c *internal.Components) error {
		o, err := c.Service.Outline(ctx, p)
		if err != nil {
			return err
		}
		for _, s := range o.Sections {
			fmt.Fprintf(os.Stdout, "%-30s %4d open %4d done\n", s.Name, s.Open, s.Done)
		}
		return nil
	})
}

func search(ctx context.Context, cmd *cli.Command) error {
	q := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(q) == "" {
		return errors.New("search: query is required")
	}
	return withComponents(cmd, func(c *internal.Components) error {
		results, err := c.Service.Search(ctx, q, int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		return printJSON(results)
	})
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	return withComponents(cmd, func(c *internal.Components) error {
		return mcpserver.New(c.Service, c.Store).ServeStdio()
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "canvasarchive",
		Usage:  "Sweep colored cards off JSON Canvas boards into Kanban Markdown archives",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (defaults are used when it does not exist)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and archive canvases as they change",
				Action: serve,
			},
			{
				Name:      "archive",
				Usage:     "Archive the selected cards of one or more canvases",
				ArgsUsage: "<canvas>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Print the merged archive instead of writing"},
				},
				Action: archive,
			},
			{
				Name:   "sweep",
				Usage:  "Archive every canvas in the vault once",
				Action: sweep,
			},
			{
				Name:      "outline",
				Usage:     "Show the sections of an archive",
				ArgsUsage: "<archive.md|canvas>",
				Action:    outline,
			},
			{
				Name:      "search",
				Usage:     "Search archived cards",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Max results"},
				},
				Action: search,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
