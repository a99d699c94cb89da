package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	phx "github.com/go-phx-channels/phxclient"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:          "phxchat",
		Short:        "Chat on a Phoenix channel from the terminal",
		Version:      phx.Version,
		SilenceUsage: true,
	}
	registerFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "join <topic>",
		Short: "Join a topic, print its messages and presence, send stdin lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, cmd.Flags())
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	})
	return root
}

func setupLogging(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *Config, topic string, in io.Reader, out io.Writer) error {
	registry := prometheus.NewRegistry()
	metrics := phx.NewMetrics(phx.WithRegistry(registry), phx.WithNamespace("phxchat"))

	logger := log.With().Str("topic", topic).Logger()
	socket := phx.NewSocket(cfg.URL, &phx.SocketOptions{
		HeartbeatInterval:  cfg.Heartbeat,
		InsecureSkipVerify: cfg.Insecure,
		Logger:             &logger,
		Metrics:            metrics,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	r := newRoom(socket, topic, cfg.User, out)
	disconnected := make(chan error, 1)
	socket.OnConnect(func() {
		r.printf("connected to %s\n", socket.Endpoint())
		r.join()
	})
	socket.OnDisconnect(func(err error) {
		select {
		case disconnected <- err:
		default:
		}
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Reading stdin cannot be interrupted, so the scanner lives outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := socket.Connect(); err != nil {
		return err
	}

	eg.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-disconnected:
				if err != nil {
					return errors.Wrap(err, "connection lost")
				}
				r.printf("disconnected\n")
				return nil
			case line, ok := <-lines:
				if !ok || r.handleLine(line) {
					return nil
				}
			}
		}
	})

	err := eg.Wait()
	if derr := socket.Disconnect(); derr != nil {
		log.Debug().Err(derr).Msg("disconnect")
	}
	return err
}
