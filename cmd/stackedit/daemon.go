package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SamTV12345/stackedit/internal/daemon"
	"github.com/SamTV12345/stackedit/internal/dashboard"
	"github.com/SamTV12345/stackedit/internal/provider"
	"github.com/SamTV12345/stackedit/internal/publish"
	wsync "github.com/SamTV12345/stackedit/internal/sync"
)

var (
	daemonMirrorDir string
	daemonDashboard bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch a mirror directory and synchronize continuously",
	Long: `daemon mirrors the workspace into a local directory, watches it for
markdown edits, and runs periodic synchronization passes against the
remote backend.

Edits to .md files under the mirror directory are debounced and folded
back into the workspace; deletions move the matching items to the
trash. With --dashboard a local websocket endpoint streams sync and
notification events for UI frontends.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := openSession()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sess.close()

		logger := daemonLogger()

		var events *dashboard.Server
		if daemonDashboard {
			events = dashboard.NewServer(&dashboard.Config{
				Addr:   viper.GetString("dashboard.addr"),
				Logger: logger,
			})
			if err := events.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer events.Stop()
			fmt.Printf("Dashboard listening on ws://%s/ws\n", events.Addr())
		}

		notifier := sess.notifier
		if events != nil {
			notifier = dashboard.NewNotifier(events, notifier)
		}

		engine := wsync.New(sess.store, sess.prov, sess.sched, &wsync.Config{
			DB:       sess.db,
			Notifier: notifier,
			Logger:   logger,
		})

		syncInterval := viper.GetDuration("daemon.sync_interval")
		if syncInterval <= 0 {
			syncInterval = 60 * time.Second
		}

		// The publish engine halts a pass only while the daemon reports
		// the backend unreachable; d is assigned before Start runs.
		var d *daemon.Daemon
		publisher := publish.New(sess.store, provider.NewSetOf(sess.prov), sess.sched, &publish.Config{
			Offline:  func() bool { return d != nil && d.Offline() },
			Notifier: notifier,
			Badges:   sess.badges,
			Logger:   logger,
		})

		d, err = daemon.New(sess.store, engine, sess.manager, sess.ws.ID, daemonMirrorDir, &daemon.Config{
			SyncInterval: syncInterval,
			Events:       events,
			Publisher:    publisher,
			Logger:       logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s (workspace %s, every %s)\n", daemonMirrorDir, sess.ws.ID, syncInterval)
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon stopped: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonMirrorDir, "mirror", "", "mirror directory to watch (required)")
	daemonCmd.Flags().BoolVar(&daemonDashboard, "dashboard", false, "serve websocket events for UI frontends")
	daemonCmd.MarkFlagRequired("mirror")
	rootCmd.AddCommand(daemonCmd)
}
