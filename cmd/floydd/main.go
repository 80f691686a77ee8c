// Command floydd is the floyd server binary: it loads a Config, brings
// up a Server, and blocks until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cy99/floyd/internal/xlog"
	"github.com/cy99/floyd/server"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	logLevel := flag.String("log_level", "info", "error | warn | info | debug")
	flag.Parse()

	lvl, err := xlog.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floydd: %v\n", err)
		os.Exit(1)
	}
	xlog.SetGlobalMaxLogLevel(lvl)

	cfg, err := server.LoadConfig(*configPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "floydd: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floydd: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "floydd: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("floydd: node %s:%d listening, peers=%v\n", cfg.LocalIP, cfg.LocalPort, cfg.PeerAddresses)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	fmt.Println("floydd: shutting down")
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "floydd: shutdown: %v\n", err)
		os.Exit(1)
	}
}
