package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/timelock-wallet/tlw/internal/countdown"
	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/model"
)

var (
	watchMetricsAddr string
	watchFor         time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow lock countdowns live",
	Long: `Connect as the owner and print every lock's countdown once per tick.
When a lock unlocks the list is refreshed from the ledger shortly after.

With --metrics-addr a Prometheus /metrics endpoint is served while watching.

Examples:
  tlw watch
  tlw watch --metrics-addr :2112
  tlw watch --for 1m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if watchFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchFor)
			defer cancel()
		}

		// printing is serialized across ticks and notifications
		var mu sync.Mutex
		e, err := openEnv(ctx, envOptions{onTick: func(res countdown.Result) {
			mu.Lock()
			defer mu.Unlock()
			printTick(res)
		}})
		if err != nil {
			return err
		}
		defer e.Close()

		e.client.AddSink(notify.SinkFunc(func(n model.Notification) {
			mu.Lock()
			defer mu.Unlock()
			printNotification(n)
		}))

		addr := watchMetricsAddr
		if addr == "" {
			addr = e.cfg.Metrics.Listen
		}
		if addr != "" {
			stop, err := serveMetrics(addr, e.metrics.Handler())
			if err != nil {
				return err
			}
			defer stop()
			fmt.Printf("Metrics available at http://%s/metrics\n", addr)
		}

		if err := e.connect(ctx); err != nil {
			return err
		}

		mu.Lock()
		if jsonOutput {
			_ = outputJSON(lockViews(e.client, time.Now()))
		} else {
			printLocks(lockViews(e.client, time.Now()))
		}
		mu.Unlock()

		<-ctx.Done()
		return nil
	},
}

func printTick(res countdown.Result) {
	if jsonOutput {
		_ = outputJSON(map[string]any{"remaining": res.Remaining, "pending": res.Pending})
		return
	}
	ids := sets.List(sets.KeySet(res.Remaining))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s %s", color.LockID(id), countdown.Format(res.Remaining[id])))
	}
	fmt.Println(strings.Join(parts, "  "))
}

func printNotification(n model.Notification) {
	if jsonOutput {
		_ = outputJSON(n)
		return
	}
	title := color.Success(n.Title)
	if n.Kind == model.NotificationFailure {
		title = color.Error(n.Title)
	}
	if n.Description != "" {
		fmt.Printf("%s: %s\n", title, n.Description)
		return
	}
	fmt.Println(title)
}

// serveMetrics listens on addr and returns a func that shuts the server down.
func serveMetrics(addr string, h http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmtErr("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop watching after this long (default: until interrupted)")
	rootCmd.AddCommand(watchCmd)
}
