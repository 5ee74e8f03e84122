package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll every configured printer once and print a summary table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		// Only warnings; the table is the output
		cfg.Server.LogLevel = "warn"
		logger := newLogger(cmd.ErrOrStderr(), cfg.Server)

		registry, err := printer.NewRegistry(cfg.PrinterIdentities(), printer.Options{
			CommandTimeout: timeout,
			DialTimeout:    timeout,
			Logger:         logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 4*timeout+time.Second)
		defer cancel()

		results := pollAll(ctx, registry)
		if err := registry.Close(context.Background()); err != nil {
			logger.Debug("failed to release printers", "error", err)
		}

		renderStatus(cmd.OutOrStdout(), results)
		return nil
	},
}

func init() {
	statusCmd.Flags().Duration("timeout", 3*time.Second, "Per-command timeout")
	rootCmd.AddCommand(statusCmd)
}

type pollResult struct {
	identity models.PrinterIdentity
	status   *models.ParsedStatus
	err      error
}

// pollAll polls every printer concurrently and returns results in config order
func pollAll(ctx context.Context, registry *printer.Registry) []pollResult {
	printers := registry.Printers()
	results := make([]pollResult, len(printers))

	var wg sync.WaitGroup
	for i, p := range printers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := p.Poll(ctx)
			results[i] = pollResult{identity: p.Identity(), status: status, err: err}
			if err != nil {
				slog.Debug("poll failed", "printer", p.Name(), "error", err)
			}
		}()
	}
	wg.Wait()
	return results
}

func renderStatus(w io.Writer, results []pollResult) {
	headers := []string{"Printer", "Address", "State", "File", "Progress", "Nozzle", "Bed"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			rows = append(rows, []string{r.identity.Name, r.identity.ControlAddress(), "offline", r.err.Error(), "", "", ""})
			continue
		}
		s := r.status
		file := "-"
		if s.Status.CurrentFile != nil && *s.Status.CurrentFile != "" {
			file = *s.Status.CurrentFile
		}
		rows = append(rows, []string{
			r.identity.Name,
			r.identity.ControlAddress(),
			string(s.State()),
			file,
			fmt.Sprintf("%.1f%%", s.Progress.Percent),
			formatReading(s.Temperatures.Extruder(0)),
			formatReading(s.Temperatures.Bed()),
		})
	}
	fmt.Fprintln(w, renderTable("Printers", headers, rows))
}

func formatReading(r models.TemperatureReading, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.0f/%.0f°C", r.Current, r.Target)
}
