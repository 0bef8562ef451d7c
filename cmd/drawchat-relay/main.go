package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/drawchat/config"
	"github.com/gosuda/drawchat/relay"
)

var rootCmd = &cobra.Command{
	Use:   "drawchat-relay",
	Short: "drawchat development relay: chat rooms and shared drawing rooms",
	RunE:  runServer,
}

var (
	flagConfig     string
	flagEnvFile    string
	flagServerURLs []string
	flagPort       int
	flagName       string
	flagCredKey    string
	flagDataPath   string
	flagLogLevel   string
	flagLogPretty  bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "optional YAML config file")
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional dotenv file")
	flags.StringSliceVar(&flagServerURLs, "server-url", nil, "portal relay base URL(s); repeat or comma-separated (env DRAWCHAT_RELAY_URLS)")
	flags.IntVar(&flagPort, "port", 8093, "local HTTP port (negative to disable)")
	flags.StringVar(&flagName, "name", "drawchat", "backend display name on the portal")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional credential key for the portal listener (base64 encoded)")
	flags.StringVar(&flagDataPath, "data-path", "", "directory for persisted chat history (empty keeps it in memory)")
	flags.StringVar(&flagLogLevel, "log-level", "", "zerolog level")
	flags.BoolVar(&flagLogPretty, "log-pretty", false, "human-readable console logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute drawchat-relay command")
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server-url") {
		cfg.Relay.ServerURLs = config.SplitList(strings.Join(flagServerURLs, ","))
	}
	if flags.Changed("port") {
		cfg.Relay.Port = flagPort
	}
	if flags.Changed("name") {
		cfg.Relay.Name = flagName
	}
	if flags.Changed("cred-key") {
		cfg.Relay.CredKey = flagCredKey
	}
	if flags.Changed("data-path") {
		cfg.Relay.DataPath = flagDataPath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-pretty") {
		cfg.Logging.Pretty = flagLogPretty
	}
	if err := cfg.ValidateRelay(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.Logging, nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var store *relay.HistoryStore
	if cfg.Relay.DataPath != "" {
		store, err = relay.OpenHistory(cfg.Relay.DataPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("[relay] close history")
			}
		}()
		log.Info().Str("path", cfg.Relay.DataPath).Msg("[relay] persisting history")
	}

	srv, err := relay.NewServer(relay.Options{
		HistoryKeep: cfg.Relay.HistoryKeep,
		Store:       store,
		Registerer:  reg,
	})
	if err != nil {
		return fmt.Errorf("new relay: %w", err)
	}
	mux := srv.Router()
	mux.Handle(cfg.Relay.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	var (
		ln     net.Listener
		client *sdk.RDClient
	)
	if servers := cfg.Relay.ServerURLs; len(servers) > 0 {
		cred := sdk.NewCredential()
		if cfg.Relay.CredKey != "" {
			key, err := base64.StdEncoding.DecodeString(cfg.Relay.CredKey)
			if err != nil {
				return fmt.Errorf("decode cred key: %w", err)
			}
			cred, err = cryptoops.NewCredentialFromPrivateKey(key)
			if err != nil {
				return fmt.Errorf("new credential from private key: %w", err)
			}
		}
		c, err := sdk.NewClient(func(rc *sdk.RDClientConfig) {
			rc.BootstrapServers = servers
		})
		if err != nil {
			return fmt.Errorf("new portal client: %w", err)
		}
		listener, err := c.Listen(cred, cfg.Relay.Name, []string{"http/1.1"})
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("portal listen: %w", err)
		}
		client, ln = c, listener
		log.Info().Strs("servers", servers).Msg("[relay] portal listener enabled")
		go func() {
			if err := http.Serve(ln, mux); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				log.Error().Err(err).Msg("[relay] portal http error")
			}
		}()
	} else {
		log.Info().Msg("[relay] portal disabled; serving locally only")
	}

	var httpSrv *http.Server
	if cfg.Relay.Port >= 0 {
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Relay.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		log.Info().Msgf("[relay] serving at ws://127.0.0.1:%d/ws (history keep %s)", cfg.Relay.Port, humanize.Comma(int64(cfg.Relay.HistoryKeep)))
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[relay] local http stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	if ln != nil {
		_ = ln.Close()
	}
	if client != nil {
		_ = client.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[relay] http shutdown")
		}
	}
	srv.Close()
	log.Info().Msg("[relay] shutdown complete")
	return nil
}
