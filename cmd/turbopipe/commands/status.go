package commands

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/turbopipe/internal/cli/output"
	"github.com/marmos91/turbopipe/pkg/api/handlers"
	"github.com/marmos91/turbopipe/pkg/apiclient"
	"github.com/marmos91/turbopipe/pkg/config"
	"github.com/spf13/cobra"
)

var (
	statusAddr    string
	statusFormat  string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine status of a running turbopipe",
	Long: `Query the health API of a running turbopipe process (bench or pipe
started with api.enabled) and print its engine state and counters.

The address defaults to the configured API port on localhost. The command
fails when the engine is draining or stopped.

Examples:
  turbopipe status
  turbopipe status --addr http://10.0.0.5:9090 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "API base URL (default: http://127.0.0.1:<api.port>)")
	statusCmd.Flags().StringVarP(&statusFormat, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", apiclient.DefaultTimeout, "Request timeout")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusFormat)
	if err != nil {
		return err
	}

	addr := statusAddr
	if addr == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		addr = fmt.Sprintf("http://127.0.0.1:%d", cfg.API.Port)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	client := apiclient.New(addr).WithHTTPClient(&http.Client{Timeout: statusTimeout})
	eh, err := client.Engine(ctx)
	if eh == nil {
		return fmt.Errorf("failed to query %s: %w", addr, err)
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, false)
	if format == output.FormatTable {
		if perr := output.KeyValues(cmd.OutOrStdout(), engineRows(eh)); perr != nil {
			return perr
		}
	} else if perr := printer.Print(eh); perr != nil {
		return perr
	}

	if err != nil {
		return fmt.Errorf("engine unhealthy: %w", err)
	}
	return nil
}

func engineRows(eh *handlers.EngineHealth) [][2]string {
	rows := [][2]string{
		{"State", eh.State},
		{"Workers", strconv.Itoa(eh.Workers)},
		{"Queue", fmt.Sprintf("%d / %d", eh.QueueDepth, eh.QueueCapacity)},
		{"In flight", strconv.Itoa(eh.InFlight)},
		{"Destinations", strconv.Itoa(eh.Destinations)},
		{"Submitted", humanize.Comma(int64(eh.Submitted))},
		{"Completed", humanize.Comma(int64(eh.Completed))},
		{"Failed", humanize.Comma(int64(eh.Failed))},
		{"Written", humanize.IBytes(eh.BytesWritten)},
	}
	if eh.LastError != "" {
		rows = append(rows, [2]string{"Last error", eh.LastError})
	}
	if eh.LastErrorAt != nil {
		rows = append(rows, [2]string{"Last error at", humanize.Time(*eh.LastErrorAt)})
	}
	return rows
}
