package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/MatrixOverlay/internal/instance"
	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Hide or show the running overlay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd.Context(), instance.CommandToggle)
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop the running overlay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd.Context(), instance.CommandQuit)
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(quitCmd)
}

func sendCommand(ctx context.Context, command instance.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := instance.Send(ctx, command); err != nil {
		return err
	}
	fmt.Printf("Sent %s\n", command)
	return nil
}
