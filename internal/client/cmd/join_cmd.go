package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peer-room/internal/db"
	"github.com/rudransh-shrivastava/peer-room/internal/session"
	"github.com/rudransh-shrivastava/peer-room/internal/store"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join room-id",
	Short: "joins a room",
	Long: `joins a room on the relay and waits for the other participant.
Type to chat. Commands: /call starts the direct connection, /send <path> sends a file,
/history prints the transcript, /clear forgets it, /leave exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		gdb, err := db.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close(gdb) }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess := session.New(session.Options{Config: cfg, Logger: log})
		defer func() { _ = sess.Close() }()

		r := &room{
			id:       roomID,
			cfg:      cfg,
			log:      log,
			sess:     sess,
			messages: store.NewMessageStore(gdb),
			files:    store.NewFileStore(gdb),
			out:      cmd.OutOrStdout(),
		}
		return r.run(ctx, cmd.InOrStdin())
	},
}
