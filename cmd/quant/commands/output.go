package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/batch"
)

// commandContext is cancelled on Ctrl+C so worker pools stop between entities
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printSummary(sum *batch.Summary) {
	if sum == nil {
		return
	}
	fmt.Printf("\n📊 %s (run %s)\n", sum.Job, sum.RunID)
	fmt.Printf("   Total:   %d\n", sum.Total)
	fmt.Printf("   OK:      %d\n", sum.OK)
	fmt.Printf("   Error:   %d\n", sum.Error)
	fmt.Printf("   Skipped: %d\n", sum.Skipped)
	fmt.Printf("   Elapsed: %s\n", sum.Elapsed)
	if len(sum.Failed) > 0 {
		shown := sum.Failed
		if len(shown) > 10 {
			shown = shown[:10]
		}
		fmt.Printf("   Failed:  %s", strings.Join(shown, ", "))
		if len(sum.Failed) > len(shown) {
			fmt.Printf(" (+%d)", len(sum.Failed)-len(shown))
		}
		fmt.Println()
	}
}
