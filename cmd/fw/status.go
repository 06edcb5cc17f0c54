package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/formatter"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show markers, sources, and the last run",
	Long: `Display the pipeline state: per-source markers, the last run's
outcome, and where outputs live.

Examples:
  fw status
  fw status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.GroupID = "setup"
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Initialized bool               `json:"initialized"`
	StateDB     string             `json:"state_db"`
	MatrixFile  string             `json:"matrix_file"`
	Markers     []state.MarkerInfo `json:"markers,omitempty"`
	LastRun     *types.RunReport   `json:"last_run,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := &statusOutput{
		StateDB:    cfg.Paths.StateDB,
		MatrixFile: cfg.Paths.MatrixFile,
	}

	if _, err := os.Stat(cfg.Paths.StateDB); os.IsNotExist(err) {
		return printStatus(out)
	}
	out.Initialized = true

	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-only usage

	if out.Markers, err = store.Markers(); err != nil {
		return err
	}

	last, err := store.LastRun()
	switch {
	case errors.Is(err, state.ErrNoRuns):
		// No runs yet; leave LastRun empty.
	case err != nil:
		return err
	default:
		out.LastRun = last
	}

	return printStatus(out)
}

func printStatus(out *statusOutput) error {
	if GetOutput() == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if !out.Initialized {
		fmt.Println("Not initialized. Run `fw init` to scaffold, then `fw run`.")
		return nil
	}

	fmt.Printf("State: %s\nMatrix: %s\n\n", out.StateDB, out.MatrixFile)

	if len(out.Markers) == 0 {
		fmt.Println("No source markers yet; nothing has been fetched.")
	} else {
		table := formatter.NewTable(os.Stdout, "SOURCE", "KIND", "MARKER")
		for _, m := range out.Markers {
			table.AddRow(m.Source, string(m.Kind), m.Marker)
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if out.LastRun != nil {
		fmt.Printf("\nLast run %s at %s: %d draft(s), %d manual review.\n",
			out.LastRun.RunID,
			out.LastRun.StartedAt.Format("2006-01-02 15:04"),
			out.LastRun.Drafts,
			out.LastRun.ManualReview)
	}
	return nil
}
