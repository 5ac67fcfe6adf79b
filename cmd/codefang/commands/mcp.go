package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillforge/modelrouter/pkg/checkpoint"
	"github.com/quillforge/modelrouter/pkg/mcp"
	"github.com/quillforge/modelrouter/pkg/observability"
	"github.com/quillforge/modelrouter/pkg/persist"
)

// NewMCPCommand builds the `mcp` subcommand: launches the Model Context
// Protocol tool server (moderate, router_stats, pipeline_status) on stdio.
func NewMCPCommand() *cobra.Command {
	var (
		configPath    string
		checkpointDir string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP tool server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), configPath, checkpointDir)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory to report pipeline_status from (empty = use config default)")

	return cmd
}

func runMCP(ctx context.Context, configPath, checkpointDir string) error {
	a, err := bootstrap(configPath)
	if err != nil {
		return err
	}

	providers, err := initObservability(observability.ModeMCP, false)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	metrics, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("register MCP RED metrics: %w", err)
	}

	if checkpointDir == "" {
		checkpointDir = a.cfg.Pipeline.CheckpointDir
	}

	server := mcp.NewServer(mcp.ServerDeps{
		Logger:         a.logger,
		Metrics:        metrics,
		Tracer:         providers.Tracer,
		Moderator:      a.moderation,
		Stats:          a.projector,
		PipelineStatus: checkpointStatusReader{dir: checkpointDir},
	})

	a.logger.Info("mcp server starting", "tools", server.ListToolNames())

	return server.Run(ctx)
}

// checkpointStatusReader implements mcp.PipelineStatusSource by reading the
// pipeline CLI's checkpoint document directly off disk, independent of the
// mcp server's own process — the pipeline runs as a separate `pipeline run`
// invocation.
type checkpointStatusReader struct {
	dir string
}

func (r checkpointStatusReader) PipelineStatus() (mcp.PipelineStatus, error) {
	var state checkpoint.ProcessingState[ChunkExtraction]

	err := persist.LoadState(r.dir, checkpoint.StateBasename, checkpoint.NewJSONCodec(), &state)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mcp.PipelineStatus{}, nil
		}

		return mcp.PipelineStatus{}, fmt.Errorf("load checkpoint: %w", err)
	}

	return mcp.PipelineStatus{
		Fingerprint: state.SourceFingerprint,
		TotalChunks: state.TotalChunks,
		Completed:   len(state.Completed),
		Failed:      len(state.Failed),
		Done:        state.Done(),
	}, nil
}
