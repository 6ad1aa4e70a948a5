// Command hurryd is the background save daemon, normally self-exec'd by
// the orchestrator and never invoked directly by a user.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/attunehq/hurry/cas"
	"github.com/attunehq/hurry/config"
	"github.com/attunehq/hurry/daemon"
	"github.com/attunehq/hurry/unitindex"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	cfg, err := config.NewDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hurryd: error loading config: %v\n", err)
	}

	d := daemon.New(unitindex.New(cfg.IndexEndpoint, nil), cas.New(cfg.CacheEndpoint, nil))
	if err := daemon.Serve(ctx, d); err != nil {
		fmt.Fprintf(os.Stderr, "hurryd: %v\n", err)
		os.Exit(1)
	}
}
