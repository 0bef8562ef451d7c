package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/drawchat/canvas"
	"github.com/gosuda/drawchat/config"
	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/raster"
	"github.com/gosuda/drawchat/session"
	"github.com/gosuda/drawchat/transport"
)

var rootCmd = &cobra.Command{
	Use:   "drawchat",
	Short: "Terminal client for drawchat rooms",
	RunE:  runClient,
}

var (
	flagConfig    string
	flagEnvFile   string
	flagServerURL string
	flagRoom      string
	flagName      string
	flagDataPath  string
	flagLogLevel  string
	flagLogPretty bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "optional YAML config file")
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional dotenv file")
	flags.StringVar(&flagServerURL, "server-url", "", "relay websocket URL (ws:// or wss://)")
	flags.StringVar(&flagRoom, "room", "", "chat room to join")
	flags.StringVar(&flagName, "name", "", "display name")
	flags.StringVar(&flagDataPath, "data-path", "", "directory for local preferences (empty keeps them in memory)")
	flags.StringVar(&flagLogLevel, "log-level", "", "zerolog level")
	flags.BoolVar(&flagLogPretty, "log-pretty", false, "human-readable console logs")

	rootCmd.AddCommand(prefsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute drawchat command")
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server-url") {
		cfg.Client.ServerURL = flagServerURL
	}
	if flags.Changed("room") {
		cfg.Client.RoomID = flagRoom
	}
	if flags.Changed("name") {
		cfg.Client.Name = flagName
	}
	if flags.Changed("data-path") {
		cfg.Client.DataPath = flagDataPath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-pretty") {
		cfg.Logging.Pretty = flagLogPretty
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPrefs(dataPath string) (*prefs.Store, error) {
	if dataPath == "" {
		return prefs.OpenMemory()
	}
	return prefs.Open(dataPath)
}

// dialURL adds the display name and the profile token to the relay URL.
func dialURL(raw, name, profile string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if name != "" {
		q.Set("name", name)
	}
	if profile != "" {
		q.Set("profile", profile)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.Logging, nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openPrefs(cfg.Client.DataPath)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()
	profile, err := store.ActiveProfile()
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}

	target, err := dialURL(cfg.Client.ServerURL, cfg.Client.Name, profile)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	client := transport.NewClient(transport.Options{
		URL:            target,
		ReconnectDelay: cfg.Client.ReconnectDelay.Duration(),
	})

	out := newRenderer(os.Stdout, store)
	sess := session.New(session.Options{
		RoomID:     cfg.Client.RoomID,
		Transport:  client,
		Prefs:      store,
		Registerer: prometheus.NewRegistry(),
		NewSurface: func() canvas.Surface {
			return raster.New(cfg.Client.CanvasWidth, cfg.Client.CanvasHeight)
		},
		OnChange: out.Dirty,
	})
	client.OnState(sess.HandleState)
	client.Start()

	settings, unwatch := store.Watch()
	defer unwatch()
	go out.Run(ctx, sess, settings)

	sh := &shell{sess: sess, prefs: store, out: out}
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	log.Info().Str("room", cfg.Client.RoomID).Str("server", cfg.Client.ServerURL).Msg("[drawchat] started; /help lists commands")
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			quit, err := sh.exec(line)
			if err != nil {
				out.Printf("! %v\n", err)
			}
			if quit {
				break loop
			}
		}
	}

	sess.Close()
	done := make(chan struct{})
	go func() {
		_ = client.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("[drawchat] transport did not close in time")
	}
	log.Info().Msg("[drawchat] shutdown complete")
	return nil
}
