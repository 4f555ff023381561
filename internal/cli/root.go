// Package cli is the boardctl command tree: a terminal front end for the
// pipeline board engine talking to the pipeline API.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/medspa-pipeline/internal/config"
	"github.com/wolfman30/medspa-pipeline/internal/crmclient"
	"github.com/wolfman30/medspa-pipeline/internal/observability/metrics"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// globals are the connection flags shared by every subcommand. Defaults
// come from the environment.
type globals struct {
	apiURL   string
	token    string
	wsURL    string
	origin   string
	logLevel string

	logger  *logging.Logger
	metrics *metrics.BoardMetrics
}

func NewRootCmd(version string) *cobra.Command {
	cfg := appconfig.Load()
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "boardctl",
		Short:        "Pipeline board from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.logger = logging.NewWithWriter(g.logLevel, cmd.ErrOrStderr())
			g.metrics = metrics.NewBoardMetrics(prometheus.NewRegistry())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.apiURL, "api-url", cfg.APIBaseURL, "Pipeline API base URL (env: PIPELINE_API_URL)")
	cmd.PersistentFlags().StringVar(&g.token, "token", cfg.APIToken, "Staff bearer token (env: PIPELINE_API_TOKEN)")
	cmd.PersistentFlags().StringVar(&g.wsURL, "ws-url", cfg.StatsWSURL, "Live stats socket URL (env: PIPELINE_STATS_WS_URL)")
	cmd.PersistentFlags().StringVar(&g.origin, "origin", cfg.StatsOrigin, "Origin sent on the stats socket")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level")

	cmd.AddCommand(newBoardCmd(g))
	cmd.AddCommand(newMoveCmd(g))
	cmd.AddCommand(newBulkCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newActivityCmd(g))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}
	return cmd
}

func (g *globals) client() (*crmclient.Client, error) {
	if g.token == "" {
		return nil, errors.New("a staff token is required (--token or PIPELINE_API_TOKEN)")
	}
	return crmclient.New(g.apiURL, g.token, g.logger), nil
}

// openBoard fetches the server layout and loads the first page of every
// column. A partially failed load still returns the board.
func (g *globals) openBoard(ctx context.Context) (*pipeline.Board, *crmclient.Client, error) {
	client, err := g.client()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := client.Stages(ctx)
	if err != nil {
		return nil, nil, err
	}
	board, err := pipeline.NewBoard(cfg, client.Collaborators(), g.logger)
	if err != nil {
		return nil, nil, err
	}
	board.WithMetrics(g.metrics)

	if err := board.Load(ctx); err != nil {
		g.logger.Warn("board loaded with errors", "error", err)
	}
	return board, client, nil
}
