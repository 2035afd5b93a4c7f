package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/bryanchriswhite/MatrixOverlay/internal/display"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/spf13/cobra"
)

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List detected monitors",
	Long: `List the monitors MatrixOverlay would draw on, in overlay order
(primary first, then left to right).

With --verify, a test overlay window is created on every monitor and its
depth, geometry, map state and input shape are read back from the X server.`,
	Example: `  # List monitors
  matrixoverlay monitors

  # Show the rows each monitor would display
  matrixoverlay monitors --layout

  # Check that overlay windows can be created correctly
  matrixoverlay monitors --verify`,
	RunE: runMonitors,
}

var (
	monitorsFormat string
	monitorsVerify bool
	monitorsLayout bool
)

func init() {
	rootCmd.AddCommand(monitorsCmd)

	monitorsCmd.Flags().StringVarP(&monitorsFormat, "format", "f", "table", "output format (table or json)")
	monitorsCmd.Flags().BoolVar(&monitorsVerify, "verify", false, "create test overlays and verify them")
	monitorsCmd.Flags().BoolVar(&monitorsLayout, "layout", false, "show the computed rows per monitor")
}

func runMonitors(cmd *cobra.Command, args []string) error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	defer conn.Close()

	monitors, err := display.Detect(conn)
	if err != nil {
		return fmt.Errorf("failed to detect monitors: %w", err)
	}

	if monitorsVerify {
		return verifyMonitors(conn, monitors)
	}
	if monitorsLayout {
		return showLayouts(monitors)
	}

	switch monitorsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(monitors)
	case "table":
		return printMonitorsTable(monitors)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", monitorsFormat)
	}
}

func printMonitorsTable(monitors []display.Monitor) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INDEX\tNAME\tGEOMETRY\tREFRESH\tPRIMARY")
	fmt.Fprintln(w, "-----\t----\t--------\t-------\t-------")

	for i, m := range monitors {
		primary := "No"
		if m.Primary {
			primary = "Yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%dx%d+%d+%d\t%d Hz\t%s\n", i, m.Name, m.Width, m.Height, m.X, m.Y, m.RefreshHz, primary)
	}
	return nil
}

func showLayouts(monitors []display.Monitor) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	for i, m := range monitors {
		screen, ok := cfg.ScreenFor(i)
		if !ok {
			fmt.Fprintf(w, "Monitor %d (%s): no screens configured\n", i, m.Name)
			continue
		}
		l := layout.Compute(screen, m.Width, m.Height, float64(cfg.General.FontSize))
		fmt.Fprintf(w, "Monitor %d (%s):\n", i, m.Name)
		for _, item := range l.Items {
			mode := "clip"
			if item.Scroll {
				mode = "scroll"
			}
			fmt.Fprintf(w, "  %s\t%s\t(%d, %d)\twidth %d\t%s\n", item.MetricID, item.Label, item.X, item.Y, item.MaxWidth, mode)
		}
	}

	for _, c := range layout.ValidateUniqueness(cfg.Screens) {
		fmt.Fprintf(w, "Warning: monitors %d and %d share %s (uniqueness %.2f)\n",
			c.A, c.B, strings.Join(c.Shared, ", "), c.Uniqueness)
	}
	return nil
}

func verifyMonitors(conn *xgb.Conn, monitors []display.Monitor) error {
	windows, err := display.CreateWindows(conn, monitors)
	if err != nil {
		return fmt.Errorf("failed to create test overlays: %w", err)
	}
	defer windows.Destroy()

	// Give the window manager a moment to map and place the windows
	time.Sleep(500 * time.Millisecond)

	failed := 0
	for _, wc := range windows.Contexts() {
		v, err := display.Verify(wc)
		if err != nil {
			fmt.Printf("✗ Monitor %d (%s): %v\n", wc.Index, wc.Monitor.Name, err)
			failed++
			continue
		}
		problems := v.Problems(wc.Monitor)
		if err := display.CheckReadBack(wc); err != nil {
			problems = append(problems, fmt.Sprintf("read-back: %v", err))
		}
		if len(problems) == 0 {
			fmt.Printf("✓ Monitor %d (%s): depth %d, %dx%d+%d+%d, click-through, read-back ok\n",
				wc.Index, wc.Monitor.Name, v.Depth, v.Width, v.Height, v.X, v.Y)
			continue
		}
		failed++
		fmt.Printf("✗ Monitor %d (%s):\n", wc.Index, wc.Monitor.Name)
		for _, p := range problems {
			fmt.Printf("    - %s\n", p)
		}
	}

	if skipped := len(monitors) - len(windows.Contexts()); skipped > 0 {
		failed += skipped
		fmt.Printf("✗ %d monitor(s) had no overlay window\n", skipped)
	}
	if failed > 0 {
		return fmt.Errorf("%d monitor(s) failed verification", failed)
	}
	return nil
}
