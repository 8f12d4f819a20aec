// Command termhost is the demo host process: it wires a factory,
// process manager, terminal manager and bridge together, serves the
// websocket transport, and exits cleanly on SIGINT/SIGTERM. It holds
// no persisted state and has no CLI surface beyond the flags below.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/bridge"
	"github.com/hatcherdx/termcore/internal/bridge/wstransport"
	"github.com/hatcherdx/termcore/internal/process"
	"github.com/hatcherdx/termcore/internal/ptyfactory"
	"github.com/hatcherdx/termcore/internal/terminal"
)

func main() {
	var (
		addr      = flag.String("addr", ":7681", "address to listen on")
		env       = flag.String("env", "development", "development or production")
		verbose   = flag.Bool("verbose", false, "enable debug logging")
		relayAddr = flag.String("relay-addr", "", "address to accept raw yamux relay connections on; disabled if empty")
	)
	flag.Parse()

	var levels []logger.Level
	if *verbose {
		levels = logger.AllLevels()
	} else {
		levels = []logger.Level{logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel}
	}
	logger.Init(logger.Config{Levels: levels})
	logger.InfoKV("termhost starting", "addr", *addr, "env", *env)

	factory := ptyfactory.NewFactory()
	procs := process.NewManager(factory)
	terminals := terminal.NewManager(procs)
	b := bridge.NewBridge(terminals, factory)

	if *relayAddr != "" {
		relayLn, err := net.Listen("tcp", *relayAddr)
		if err != nil {
			logger.Errorf("[termhost] relay listen failed: %v", err)
			os.Exit(1)
		}
		logger.InfoKV("termhost relay listening", "addr", *relayAddr)
		go serveRelayListener(relayLn, b)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		tr, err := wstransport.Upgrade(w, r)
		if err != nil {
			logger.Warnf("[termhost] upgrade failed: %v", err)
			return
		}
		b.SetTransport(tr)
		wstransport.Serve(r.Context(), tr, b)
	})

	srv := &http.Server{
		Addr:     *addr,
		Handler:  mux,
		ErrorLog: log.New(errorLogAdapter{}, "", 0),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[termhost] server error: %v", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Infof("[termhost] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("[termhost] graceful shutdown failed: %v", err)
	}
	b.Cleanup()
}

// serveRelayListener accepts connections and hands each to
// Bridge.OpenRelay in its own goroutine; OpenRelay blocks for the
// session's lifetime, so each accepted connection becomes one
// independent yamux relay session. The relay is an opt-in side
// channel, not a replacement for the JSON control connection.
func serveRelayListener(ln net.Listener, b *bridge.Bridge) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Debugf("[termhost] relay listener closed: %v", err)
			return
		}
		go func() {
			if err := b.OpenRelay(conn); err != nil {
				logger.Warnf("[termhost] relay session failed: %v", err)
			}
		}()
	}
}

// errorLogAdapter routes net/http.Server's internal error log through
// go-logger.
type errorLogAdapter struct{}

func (errorLogAdapter) Write(p []byte) (int, error) {
	logger.Warnf("[http.Server] %s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
