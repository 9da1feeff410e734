package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/live"
	"github.com/evcraddock/front-desk/internal/view"
	"github.com/evcraddock/front-desk/internal/visit"
)

// watchRecheck is how often watch re-derives without a snapshot, so the
// Today view follows the local date across midnight.
const watchRecheck = time.Minute

func newWatchCmd() *cobra.Command {
	var flags viewFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow visits live",
		Long: `Subscribe to the server's visit stream and redraw the table on every
change. Stops on Ctrl-C or when the stream fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, newAPIClient(), f, os.Stdout)
		},
	}
	flags.register(cmd)

	return cmd
}

// runWatch redraws out until ctx ends or the live subscription fails.
func runWatch(ctx context.Context, sub docstore.Subscriber, f view.Filter, out io.Writer) error {
	records := live.New(sub, visit.Decode)
	defer records.Deactivate()

	proj := view.NewProjection(nil)
	proj.SetFilter(f)
	unbind := proj.Bind(records)
	defer unbind()

	changed := make(chan live.State[visit.Record], 1)
	remove := records.OnChange(func(s live.State[visit.Record]) {
		select {
		case <-changed:
		default:
		}
		select {
		case changed <- s:
		default:
		}
	})
	defer remove()

	if err := records.Activate(visit.DefaultCollection); err != nil {
		return err
	}

	ticker := time.NewTicker(watchRecheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-changed:
			if s.Err != nil {
				return fmt.Errorf("live updates stopped: %w", s.Err)
			}
			if s.Loading {
				continue
			}
			if err := redraw(out, proj); err != nil {
				return err
			}
		case <-ticker.C:
			if records.State().Loading {
				continue
			}
			if err := redraw(out, proj); err != nil {
				return err
			}
		}
	}
}

func redraw(out io.Writer, proj *view.Projection) error {
	if isJSON() {
		return jsonEncoder(out).Encode(proj.View())
	}
	if out == os.Stdout {
		fmt.Fprint(out, "\033[H\033[2J")
	}
	fmt.Fprintf(out, "Visits (%s) at %s\n\n", proj.Filter().Mode, time.Now().Format("15:04:05"))
	return printVisitTable(out, proj.View())
}
