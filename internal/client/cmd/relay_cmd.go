package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rudransh-shrivastava/peer-room/internal/relay"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRelayCmd() *cobra.Command {
	var addr, redisAddr string

	c := &cobra.Command{
		Use:   "relay",
		Short: "runs the signaling relay",
		Long:  `runs the websocket relay that forwards signaling frames between the two participants of a room`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Relay.Addr = addr
			}
			if cmd.Flags().Changed("redis") {
				cfg.Relay.RedisAddr = redisAddr
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if !log.IsLevelEnabled(logrus.DebugLevel) {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var presence relay.Presence
			if cfg.Relay.RedisAddr != "" {
				client, err := relay.DialRedis(ctx, cfg.Relay.RedisAddr, cfg.Relay.RedisPassword, cfg.Relay.RedisDB)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				presence = relay.NewRedisPresence(client)
				log.Infof("Recording room presence in redis at %s", cfg.Relay.RedisAddr)
			}

			srv, err := relay.NewServer(relay.Config{
				Addr:     cfg.Relay.Addr,
				MaxPeers: cfg.Relay.MaxPeers,
				Presence: presence,
				Logger:   log,
			})
			if err != nil {
				return err
			}

			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "listen address (default from RELAY_ADDR)")
	c.Flags().StringVar(&redisAddr, "redis", "", "redis address for room presence (default from REDIS_ADDR)")
	return c
}

// ExecuteRelay runs the relay command on its own, for the standalone binary.
func ExecuteRelay() {
	c := newRelayCmd()
	c.PersistentFlags().AddFlagSet(rootCmd.PersistentFlags())
	if err := c.Execute(); err != nil {
		os.Exit(1)
	}
}
