package cmd

import (
	"log"
	"os"

	"github.com/rudransh-shrivastava/peer-room/internal/config"
	"github.com/rudransh-shrivastava/peer-room/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var flags struct {
	relayURL  string
	logLevel  string
	logFile   string
	historyDB string
	downloads string
}

var rootCmd = &cobra.Command{
	Use:  `peer-room`,
	Long: `peer-room is a two peer chat and file transfer room over a direct WebRTC link`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.relayURL, "relay", "", "relay base url (default from PEER_ROOM_RELAY_URL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFile, "log-file", "", "also write logs to this file, rotated")
	pf.StringVar(&flags.historyDB, "history-db", "", "sqlite file for the room transcript (in memory when empty)")
	pf.StringVar(&flags.downloads, "downloads", "", "directory for received files")

	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(newRelayCmd())
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("relay") {
		cfg.Relay.URL = flags.relayURL
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if f.Changed("log-file") {
		cfg.Log.File = flags.logFile
	}
	if f.Changed("history-db") {
		cfg.HistoryDB = flags.historyDB
	}
	if f.Changed("downloads") {
		cfg.Transfer.DownloadDir = flags.downloads
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Output: os.Stderr,
	})
}
