package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/eudrsat/internal/adapters/valkey"
	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/workflows"
)

func newFetchCmd() *cobra.Command {
	var (
		area    areaFlags
		session string
		outDir  string
		durable bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch before/now imagery for an area",
		Long: `
Resolve the area, then run one fetch cycle and print the result as JSON.
With --durable the cycle runs as a workflow on the imagery worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := area.input(cmd)
			if err != nil {
				return err
			}
			svc := loadServices()
			resolved, err := svc.areas.Resolve(in)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var res *domain.ImageryResult
			if durable {
				res, err = fetchDurable(ctx, svc, session, resolved)
			} else {
				res, err = svc.imagery.Fetch(ctx, session, resolved.Bounds, nil)
			}
			if err != nil {
				return err
			}
			if err := saveImages(outDir, res); err != nil {
				return fmt.Errorf("save images: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Area   *domain.Area          `json:"area"`
				Result *domain.ImageryResult `json:"result"`
			}{resolved, res})
		},
	}
	area.register(cmd)
	cmd.Flags().StringVar(&session, "session", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for rendered images")
	cmd.Flags().BoolVar(&durable, "durable", false, "run the cycle on the Temporal worker")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}

func fetchDurable(ctx context.Context, svc *services, session string, area *domain.Area) (*domain.ImageryResult, error) {
	c, err := client.Dial(client.Options{
		HostPort:  svc.cfg.Temporal.HostPort,
		Namespace: svc.cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	if session == "" {
		session = uuid.NewString()
	}
	cycleID := uuid.NewString()
	in := workflows.NewImageryInput(svc.imagery.Settings(), area.Links, cycleID, session, area.Bounds)

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "imagery-" + cycleID,
		TaskQueue: svc.cfg.Temporal.TaskQueue,
	}, workflows.ImageryWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}

	var res domain.ImageryResult
	if err := run.Get(ctx, &res); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	if !parked(&res) {
		return &res, nil
	}
	cache, err := valkey.New(svc.cfg.Valkey.Addr, svc.cfg.Valkey.Prefix)
	if err != nil {
		return nil, fmt.Errorf("images of %s are parked in valkey: %w", run.GetID(), err)
	}
	defer cache.Close()
	if err := workflows.LoadParked(ctx, cache, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func parked(res *domain.ImageryResult) bool {
	for _, src := range []*domain.ImageSource{res.Before, res.Now} {
		if src != nil && src.Kind == domain.SourceCached {
			return true
		}
	}
	return false
}

func newLinksCmd() *cobra.Command {
	var area areaFlags
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Print the Copernicus portal links for an area",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := area.input(cmd)
			if err != nil {
				return err
			}
			resolved, err := loadServices().areas.Resolve(in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resolved.Links)
		},
	}
	area.register(cmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 2<<20))
}
