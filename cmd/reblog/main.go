package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/starford/reblog/internal"
	pkgconfig "github.com/starford/reblog/pkg/config"
)

var version = "dev"

// loadConfig reads the file named by --config. When the flag is left at its
// default and that file does not exist, built-in defaults are used.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")

	if cmd.IsSet("config") {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		return cfg, nil
	}
	if _, err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func sitemap(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.WriteSitemap(ctx, cmd.String("domain"), cmd.String("out"), internal.WithConfig(cfg))
}

func render(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("render: expected exactly one Markdown file")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RenderFile(cmd.Args().First(), os.Stdout, internal.WithConfig(cfg))
}

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	cmd := &cli.Command{
		Name:    "reblog",
		Usage:   "Markdown blog content pipeline: posts, tables of contents, sitemap and live updates",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve posts over HTTP and SSE (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve read-only post tools to MCP clients on stdin/stdout",
				Action: mcp,
			},
			{
				Name:  "sitemap",
				Usage: "Write sitemap.xml for every post",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "domain",
						Usage:   "Public site address, e.g. https://example.com (defaults to site.domain)",
						Sources: cli.EnvVars("REBLOG_SITE_DOMAIN"),
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output path relative to the posts directory",
						Value: "sitemap.xml",
					},
				},
				Action: sitemap,
			},
			{
				Name:      "render",
				Usage:     "Build one Markdown file and print the post as JSON",
				ArgsUsage: "<file.md>",
				Action:    render,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
