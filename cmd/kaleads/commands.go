package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/httpapi"
	"github.com/Tegath/kaleads/internal/orchestrator"
	"github.com/Tegath/kaleads/internal/server"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// shutdownTimeout bounds the drain of in-flight HTTP requests.
const shutdownTimeout = 15 * time.Second

func (c *cli) newApp(ctx context.Context) (*app.App, func(), error) {
	a, cleanup, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating app: %w", err)
	}
	return a, cleanup, nil
}

// ─── serve ───────────────────────────────────────────────────────────────────

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the MCP server on stdin/stdout. Add it to your AI tool's MCP config:

  {
    "mcpServers": {
      "kaleads": {
        "command": "kaleads",
        "args": ["serve"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			c.logger.Info("serving MCP over stdio", zap.String("version", server.Version))
			// Logs go to stderr so they never interleave with the protocol.
			return mcpserver.ServeStdio(server.New(a))
		},
	}
}

// ─── http ────────────────────────────────────────────────────────────────────

func (c *cli) httpCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Start the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return serveHTTP(ctx, a, c.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}

// serveHTTP runs the REST API until ctx is cancelled, then drains it.
func serveHTTP(ctx context.Context, a *app.App, logger *zap.Logger) error {
	cfg := a.Config.HTTP
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewServer(a, cfg.WriteTimeout),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── generate ────────────────────────────────────────────────────────────────

type generateFlags struct {
	contact     string
	client      string
	company     string
	website     string
	industry    string
	companyFile string
	json        bool
}

func (c *cli) generateCmd() *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Resolve every field for one company and record it",
		Example: `  kaleads generate --contact jane@aircall.io --client acme --company Aircall --website aircall.io
  kaleads generate --contact jane --client acme --company-file aircall.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := f.descriptor()
			if err != nil {
				return err
			}

			a, cleanup, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := a.Orchestrator.GenerateFor(cmd.Context(), f.contact, f.client, company)
			if errors.Is(err, orchestrator.ErrLedger) && rec != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			} else if err != nil {
				return err
			}

			if f.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			return printRecord(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVar(&f.contact, "contact", "", "Contact identifier (required)")
	cmd.Flags().StringVar(&f.client, "client", "", "Client context identifier (required)")
	cmd.Flags().StringVar(&f.company, "company", "", "Target company name")
	cmd.Flags().StringVar(&f.website, "website", "", "Target company website")
	cmd.Flags().StringVar(&f.industry, "industry", "", "Target company industry, if known")
	cmd.Flags().StringVar(&f.companyFile, "company-file", "", "YAML file describing the target company")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the record as JSON")
	_ = cmd.MarkFlagRequired("contact")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

// descriptor builds the target company from --company-file, then applies
// the individual flags on top.
func (f generateFlags) descriptor() (domain.CompanyDescriptor, error) {
	var d domain.CompanyDescriptor
	if f.companyFile != "" {
		data, err := os.ReadFile(f.companyFile)
		if err != nil {
			return d, fmt.Errorf("reading company file: %w", err)
		}
		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, fmt.Errorf("parsing company file %s: %w", f.companyFile, err)
		}
	}
	if f.company != "" {
		d.Name = f.company
	}
	if f.website != "" {
		d.Website = f.website
	}
	if f.industry != "" {
		d.Industry = f.industry
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("target company: %w", err)
	}
	return d, nil
}

func printRecord(w io.Writer, rec *domain.EmailGenerationRecord) error {
	fmt.Fprintf(w, "Record %s for %s (quality %d/100, %s)\n\n",
		rec.ID, rec.Company.Name, rec.QualityScore, rec.GenerationTime.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tLEVEL\tCONF\tSOURCE\tVALUE")
	for _, id := range domain.FieldOrder {
		f, ok := rec.Fields[id]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\tL%d\t%d\t%s\t%s\n", id, f.FallbackLevel, f.Confidence, f.Source, f.Value)
	}
	return tw.Flush()
}

// ─── version ─────────────────────────────────────────────────────────────────

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kaleads v%s\n", server.Version)
		},
	}
}
