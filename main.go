/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml configuration file")
	flag.Parse()

	config := engine.DefaultApplicationConfig()
	if *configPath != "" {
		c, err := engine.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
		config = c
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// cancel the run on sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// run engine
	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %v", err)
	}
	if runErr != nil {
		core.LogError("engine stopped: %v", runErr)
		os.Exit(1)
	}
}
