package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SamTV12345/stackedit/internal/provider"
	"github.com/SamTV12345/stackedit/internal/publish"
	wsync "github.com/SamTV12345/stackedit/internal/sync"
)

var publishCmd = &cobra.Command{
	Use:   "publish <path>",
	Short: "Publish a file to its publish locations",
	Long: `publish uploads a workspace file to every publish location attached
to it. The file is named by its workspace path, for example
"docs/intro.md".

A file with no publish locations is an error; attach one first.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := openSession()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sess.close()

		ids := sess.store.ItemsByPath(args[0])
		if len(ids) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no file at %q\n", args[0])
			os.Exit(1)
		}

		engine := publish.New(sess.store, provider.NewSetOf(sess.prov), sess.sched, &publish.Config{
			Notifier: sess.notifier,
			Badges:   sess.badges,
		})

		if err := engine.PublishFile(ctx, ids[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := wsync.Persist(sess.db, sess.store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to save workspace state: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
