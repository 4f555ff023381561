package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medspa-pipeline/internal/livestats"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

const reconnectDelay = 2 * time.Second

func newStatsCmd(g *globals) *cobra.Command {
	var (
		watch   bool
		updates int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show board statistics, optionally following live updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			board, client, err := g.openBoard(ctx)
			if err != nil {
				return err
			}
			defer board.Close()

			server, err := client.Stats(ctx)
			if err != nil {
				g.logger.Warn("server stats unavailable", "error", err)
			} else {
				renderBaseline(cmd.OutOrStdout(), "server", server)
			}

			local := board.Baseline(time.Now())
			merger := livestats.NewMerger(g.logger).WithMetrics(g.metrics)
			if !watch {
				renderBaseline(cmd.OutOrStdout(), "board", merger.Display(local))
				return nil
			}
			if g.wsURL == "" {
				return errors.New("--watch needs a stats socket (--ws-url or PIPELINE_STATS_WS_URL)")
			}
			return g.follow(ctx, cmd, merger, local, updates)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow live statistics pushed by the server")
	cmd.Flags().IntVar(&updates, "updates", 0, "Stop after this many live updates (0 follows until interrupted)")
	return cmd
}

// follow keeps the stats socket connected, reconnecting after drops, and
// prints the merged baseline on every applied update.
func (g *globals) follow(ctx context.Context, cmd *cobra.Command, merger *livestats.Merger, local pipeline.Baseline, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	applied := make(chan struct{}, 16)
	merger.OnUpdate(func(livestats.StatsMessage) {
		select {
		case applied <- struct{}{}:
		default:
		}
	})

	ws := livestats.NewWSClient(g.wsURL, g.token, merger, g.logger)
	if g.origin != "" {
		ws.WithOrigin(g.origin)
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		for {
			err := ws.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, livestats.ErrSubscribeRejected) {
				return err
			}
			g.logger.Warn("stats socket dropped, reconnecting", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}
		}
	})
	grp.Go(func() error {
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-applied:
				seen++
				renderBaseline(cmd.OutOrStdout(), fmt.Sprintf("live #%d", seen), merger.Display(local))
				if limit > 0 && seen >= limit {
					cancel()
					return nil
				}
			}
		}
	})
	return grp.Wait()
}
