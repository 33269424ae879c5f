// Package cli holds the palette command and its subcommands.
package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"impractical.co/palette"
	"impractical.co/palette/internal/config"
	"impractical.co/palette/internal/tracing"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	viper   *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
	tracing *tracing.Provider
	engine  *palette.Engine
}

// NewRootCommand returns the palette command, ready to Execute.
func NewRootCommand(version string) *cobra.Command {
	a := &app{viper: viper.New()}
	root := &cobra.Command{
		Use:   "palette",
		Short: "Render html/template files with components, slots, and inheritance",
		Long: `palette renders html/template files that define and invoke components.

Templates are read from the configured template directories. Settings come
from palette.yaml, PALETTE_ environment variables, and flags, in increasing
order of precedence.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./palette.yaml)")
	flags.StringSliceP("templates", "t", nil, "template directories, searched in order")
	flags.Int("max-depth", 0, "how deeply components may nest")
	flags.String("error-page", "", "template rendered when a page fails")
	flags.Bool("preview", false, "render component definitions in place")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.String("left-delim", "", "left action delimiter")
	flags.String("right-delim", "", "right action delimiter")
	for key, flag := range map[string]string{
		"templates":   "templates",
		"max_depth":   "max-depth",
		"error_page":  "error-page",
		"preview":     "preview",
		"log_level":   "log-level",
		"left_delim":  "left-delim",
		"right_delim": "right-delim",
	} {
		_ = a.viper.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.renderCommand(),
		a.componentCommand(),
		a.indexCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.viper, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.tracing, err = tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("error setting up tracing: %w", err)
	}
	a.engine = a.newEngine()
	cmd.SetContext(palette.LoggingContext(ctx, a.log))
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.tracing == nil {
		return nil
	}
	return a.tracing.Shutdown(ctx)
}

func (a *app) newEngine() *palette.Engine {
	roots := make([]fs.FS, 0, len(a.cfg.Templates))
	for _, dir := range a.cfg.Templates {
		roots = append(roots, os.DirFS(dir))
	}
	loader := palette.NewFSLoader(roots...)
	loader.LeftDelim, loader.RightDelim = a.cfg.LeftDelim, a.cfg.RightDelim

	return palette.New(loader,
		palette.WithMaxDepth(a.cfg.MaxDepth),
		palette.WithErrorPage(a.cfg.ErrorPage),
		palette.WithDefinitionPreview(a.cfg.Preview),
		palette.WithTracerProvider(a.tracing.TracerProvider()),
	)
}

// readData decodes a YAML (or JSON) file of template data. An empty path
// means no data.
func readData(path string) (map[string]any, error) {
	data := map[string]any{}
	if path == "" {
		return data, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading data file: %w", err)
	}
	if err := yaml.Unmarshal(contents, &data); err != nil {
		return nil, fmt.Errorf("error decoding data file %s: %w", path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// parseAssignments turns key=value pairs into a map. Values are decoded as
// YAML scalars, so numbers and booleans keep their types.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var val any
		if err := yaml.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		out[key] = val
	}
	return out, nil
}

// parseMarkup turns name=markup pairs into a map, keeping values as text.
func parseMarkup(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected name=markup, got %q", pair)
		}
		out[key] = val
	}
	return out, nil
}
