package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"impractical.co/palette"
	"impractical.co/palette/internal/inspect"
	"impractical.co/palette/internal/server"
	"impractical.co/palette/internal/watcher"
)

func (a *app) renderCommand() *cobra.Command {
	var dataFile, outFile string
	var lenient bool
	cmd := &cobra.Command{
		Use:   "render PAGE",
		Short: "Render a template",
		Long: `Render a template to standard output, or to --out.

Broken component invocations are rendered as HTML comments and logged. Any
other failure is an error, unless --lenient is set, in which case the error
page (or a short message) is rendered instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(dataFile)
			if err != nil {
				return err
			}
			out, closeOut, err := output(cmd, outFile)
			if err != nil {
				return err
			}
			if lenient {
				// Render closes out itself
				a.engine.Render(cmd.Context(), out, args[0], data)
				return nil
			}
			defer closeOut()
			return a.engine.Execute(cmd.Context(), out, args[0], data)
		},
	}
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "YAML or JSON file used as the page's data")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to this file instead of standard output")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "fall back to the error page instead of failing")
	return cmd
}

func (a *app) componentCommand() *cobra.Command {
	var dataFile, children string
	var props, overrides []string
	cmd := &cobra.Command{
		Use:   "component FILE NAME",
		Short: "Render a single component",
		Example: `  palette component ui/cards.html card --prop title=Hello \
    --override 'body=<p>{{super}}</p>'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(dataFile)
			if err != nil {
				return err
			}
			propMap, err := parseAssignments(props)
			if err != nil {
				return err
			}
			overrideMap, err := parseMarkup(overrides)
			if err != nil {
				return err
			}
			out := a.engine.RenderComponent(cmd.Context(), palette.Call{
				Template:  args[0],
				Component: args[1],
				Props:     propMap,
				Overrides: overrideMap,
				Children:  children,
				Data:      data,
			})
			_, err = io.WriteString(cmd.OutOrStdout(), string(out)+"\n")
			return err
		},
	}
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "YAML or JSON file used as the surrounding data")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "a property, as name=value; repeatable")
	cmd.Flags().StringArrayVar(&overrides, "override", nil, "a slot override, as slot=markup; repeatable")
	cmd.Flags().StringVar(&children, "children", "", "markup passed to the component as .children")
	return cmd
}

func (a *app) indexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index FILE...",
		Short: "Describe the components templates define",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries := make([]inspect.Summary, 0, len(args))
			for _, name := range args {
				sum, err := inspect.Describe(cmd.Context(), a.engine, name)
				if err != nil {
					return err
				}
				summaries = append(summaries, sum)
			}
			out, err := inspect.YAML(summaries...)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rendered templates over HTTP for previewing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "address to listen on")
	cmd.Flags().Bool("watch", false, "drop cached templates when template files change")
	_ = a.viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = a.viper.BindPFlag("server.watch", cmd.Flags().Lookup("watch"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if a.cfg.Server.Watch {
		w, err := watcher.New(watcher.Config{
			Dirs:       a.cfg.Templates,
			Extensions: a.cfg.Extensions,
			Debounce:   a.cfg.Server.Debounce,
			Logger:     a.log,
		})
		if err != nil {
			return err
		}
		changes, err := w.Start()
		if err != nil {
			_ = w.Stop()
			return err
		}
		defer func() { _ = w.Stop() }()
		go a.invalidate(ctx, changes)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.NewHandler(a.engine, a.log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errs := make(chan error, 1)
	go func() {
		a.log.InfoContext(ctx, "serving templates", "addr", srv.Addr, "templates", a.cfg.Templates)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("error serving: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error shutting down: %w", err)
	}
	return nil
}

func (a *app) invalidate(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			dropped := a.engine.CachedTemplates()
			a.engine.ClearCache()
			a.log.InfoContext(ctx, "templates changed, cleared cache", "dropped", dropped)
		}
	}
}

// output returns where rendered output goes, and a func to call when
// done with it.
func output(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		// hide any Close method, so Render doesn't close stdout
		return struct{ io.Writer }{cmd.OutOrStdout()}, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
