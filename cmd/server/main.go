package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/tcpchat/internal/logging"
	"github.com/Tyrowin/tcpchat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat server:", err)
		os.Exit(1)
	}
}

func run() error {
	config := server.NewConfigFromEnv()

	flag.IntVar(&config.Port, "port", config.Port, "preferred TCP port")
	flag.IntVar(&config.PortRangeEnd, "port-range-end", config.PortRangeEnd, "last port to try when the preferred one is busy")
	flag.StringVar(&config.HTTPAddr, "http", config.HTTPAddr, "address for the health and WebSocket gateway (disabled when empty)")
	flag.StringVar(&config.LogFile, "log-file", config.LogFile, "append JSON logs to this file")
	flag.Parse()

	logger, closer, err := logging.New(logging.Options{Level: config.LogLevel, File: config.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat := server.New(*config, logger)
	addr, err := chat.Listen()
	if err != nil {
		return err
	}
	logger.Info().Str("addr", addr.String()).Msg("share this address with clients to connect")

	var httpServer *http.Server
	if config.HTTPAddr != "" {
		httpServer = startGateway(chat, config.HTTPAddr, logger)
	}

	err = chat.Serve(ctx)
	if !errors.Is(err, server.ErrServerClosed) {
		if serr := chat.Shutdown(server.DefaultShutdownTimeout); serr != nil {
			logger.Warn().Err(serr).Msg("chat server shutdown error")
		}
	}

	if httpServer != nil {
		if herr := server.ShutdownServer(httpServer, server.DefaultShutdownTimeout); herr != nil {
			logger.Warn().Err(herr).Msg("HTTP gateway shutdown error")
		}
	}

	if errors.Is(err, server.ErrServerClosed) {
		return nil
	}
	return err
}

func startGateway(chat *server.Server, addr string, logger zerolog.Logger) *http.Server {
	httpServer := server.CreateServer(addr, server.SetupRoutes(server.NewGateway(chat)))

	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP gateway stopped")
		}
	}()

	return httpServer
}
