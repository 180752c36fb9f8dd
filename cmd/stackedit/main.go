// Command stackedit synchronizes and publishes markdown workspaces
// against remote backends.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/SamTV12345/stackedit/internal/confirm"
	"github.com/SamTV12345/stackedit/internal/item"
	"github.com/SamTV12345/stackedit/internal/localdb"
	"github.com/SamTV12345/stackedit/internal/notify"
	"github.com/SamTV12345/stackedit/internal/provider"
	"github.com/SamTV12345/stackedit/internal/provider/gitlab"
	"github.com/SamTV12345/stackedit/internal/provider/s3"
	"github.com/SamTV12345/stackedit/internal/queue"
	wsync "github.com/SamTV12345/stackedit/internal/sync"
	"github.com/SamTV12345/stackedit/internal/workspace"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stackedit",
	Short: "Workspace synchronization for markdown files",
	Long: `stackedit keeps a local markdown workspace reconciled with remote
backends (GitLab projects, S3 buckets) and publishes files to their
publish locations.

Configuration lives in ~/.stackedit/config.yaml and can be overridden
with STACKEDIT_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.stackedit/config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".stackedit"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STACKEDIT")
	viper.AutomaticEnv()

	viper.SetDefault("data_dir", defaultDataDir())
	viper.SetDefault("workspace.id", "main")
	viper.SetDefault("workspace.branch", "main")
	viper.SetDefault("workspace.unique_paths", true)
	viper.SetDefault("daemon.sync_interval", "60s")
	viper.SetDefault("daemon.log_file", "")
	viper.SetDefault("dashboard.addr", "127.0.0.1:8148")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stackedit"
	}
	return filepath.Join(home, ".stackedit")
}

// loadWorkspace builds the workspace record from configuration.
func loadWorkspace() *item.Workspace {
	return &item.Workspace{
		ID:          viper.GetString("workspace.id"),
		Name:        viper.GetString("workspace.name"),
		ProviderID:  viper.GetString("workspace.provider"),
		ServerURL:   viper.GetString("workspace.server_url"),
		ProjectPath: viper.GetString("workspace.project_path"),
		ProjectID:   viper.GetString("workspace.project_id"),
		Branch:      viper.GetString("workspace.branch"),
		Bucket:      viper.GetString("workspace.bucket"),
		Endpoint:    viper.GetString("workspace.endpoint"),
		Path:        viper.GetString("workspace.path"),
		UniquePaths: viper.GetBool("workspace.unique_paths"),
	}
}

// newProvider builds the configured backend for the workspace.
func newProvider(badges *notify.Badges) (provider.Provider, error) {
	providerID := viper.GetString("workspace.provider")
	switch providerID {
	case gitlab.ProviderID:
		return gitlab.New(&gitlab.Config{
			Token:     &oauth2.Token{AccessToken: viper.GetString("gitlab.token")},
			Confirmer: confirm.AutoApprove{},
			Badges:    badges,
		}), nil
	case s3.ProviderID:
		return s3.New(&s3.Config{
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			Insecure:  viper.GetBool("s3.insecure"),
		}), nil
	case "":
		return nil, fmt.Errorf("workspace.provider is not configured")
	default:
		return provider.Resolve(providerID)
	}
}

// session bundles the objects most commands need.
type session struct {
	manager  *localdb.Manager
	db       *localdb.DB
	ws       *item.Workspace
	store    *workspace.Store
	prov     provider.Provider
	sched    *queue.Scheduler
	notifier notify.Notifier
	badges   *notify.Badges
}

// openSession loads the workspace store from the local database and
// wires the configured provider.
func openSession() (*session, error) {
	manager, err := localdb.NewManager(viper.GetString("data_dir"))
	if err != nil {
		return nil, err
	}

	ws := loadWorkspace()
	db, err := manager.OpenWorkspace(ws.ID)
	if err != nil {
		manager.Close()
		return nil, err
	}

	notifier := notify.NewLogNotifier(log.New(os.Stderr, "", 0))
	badges := notify.NewBadges(notifier)

	store := workspace.New(ws, &workspace.Config{Badges: badges})
	if err := wsync.Load(db, store); err != nil {
		db.Close()
		manager.Close()
		return nil, err
	}

	prov, err := newProvider(badges)
	if err != nil {
		db.Close()
		manager.Close()
		return nil, err
	}

	return &session{
		manager:  manager,
		db:       db,
		ws:       ws,
		store:    store,
		prov:     prov,
		sched:    queue.New(nil),
		notifier: notifier,
		badges:   badges,
	}, nil
}

func (s *session) close() {
	s.badges.Close()
	s.db.Close()
	s.manager.Close()
}

// daemonLogger returns the daemon log destination: a rotated file when
// configured, stderr otherwise.
func daemonLogger() *log.Logger {
	logFile := viper.GetString("daemon.log_file")
	if logFile == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}, "[daemon] ", log.LstdFlags)
}
