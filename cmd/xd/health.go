package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the crossdock server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := api.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), h); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Health:    %s\n", h.Status)
			fmt.Fprintf(out, "Sessions:  %d\n", h.Sessions)
			switch {
			case !h.InventoryEnabled:
				fmt.Fprintf(out, "Inventory: %s\n", ui.RenderMuted("disabled"))
			case h.InventoryCooldown:
				fmt.Fprintf(out, "Inventory: %s\n", ui.RenderWarn("cooling down"))
			default:
				fmt.Fprintf(out, "Inventory: %s\n", ui.RenderOK("ok"))
			}
		}

		if h.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", h.Status)
		}
		return nil
	},
}
