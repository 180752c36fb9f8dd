package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SamTV12345/stackedit/internal/localdb"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage local workspace databases",
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List known workspaces and their last sync activity",
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := localdb.NewManager(viper.GetString("data_dir"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer manager.Close()

		ids, err := manager.ListWorkspaceIDs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No workspaces found.")
			return
		}

		current := viper.GetString("workspace.id")
		for _, id := range ids {
			marker := " "
			if id == current {
				marker = "*"
			}
			last, err := manager.LastSyncActivity(id)
			if err != nil || last.IsZero() {
				fmt.Printf("%s %-20s never synced\n", marker, id)
				continue
			}
			fmt.Printf("%s %-20s last synced %s\n", marker, id, last.Format("2006-01-02 15:04:05"))
		}
	},
}

var workspaceRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a workspace's local database",
	Long: `rm removes the local database of a workspace. Remote files are not
touched; a later sync of the same workspace starts from a clean slate.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		manager, err := localdb.NewManager(viper.GetString("data_dir"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer manager.Close()

		if err := manager.RemoveWorkspace(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace %s removed.\n", args[0])
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceStatusCmd)
	workspaceCmd.AddCommand(workspaceRmCmd)
	rootCmd.AddCommand(workspaceCmd)
}
