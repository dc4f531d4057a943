// The client command connects a headless client to a session server. It can
// list the public lobbies, create one or join one by code and then stays in
// it, logging everything the server sends until it is interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/client"
	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/core"
	"github.com/dcrodman/warpsync/internal/core/debug"
	"github.com/dcrodman/warpsync/internal/gamemode/freeforall"
	"github.com/dcrodman/warpsync/internal/protocol"
)

var (
	configFlag   = flag.String("config", "", "Path to the directory containing a config file (defaults are used when empty)")
	addressFlag  = flag.String("address", "localhost:7777", "host:port of the server")
	usernameFlag = flag.String("username", "player", "Username to join lobbies with")
	createFlag   = flag.String("create", "", "Create a lobby with this name")
	joinFlag     = flag.String("join", "", "Join the lobby with this code")
	listFlag     = flag.Bool("list", false, "List the public lobbies and exit")
)

func main() {
	flag.Parse()

	config := core.DefaultConfig()
	if *configFlag != "" {
		var err error
		if config, err = core.LoadConfig(*configFlag); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	logger, err := core.NewLogger(config)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *core.Config, logger *logrus.Logger) error {
	done := make(chan struct{})
	var c *client.Client
	c = client.New(client.Options{
		Config: config,
		Logger: logger,
		OnMessage: func(msg interface{}) {
			logger.Infof("%s: %s", protocol.TypeName(msg), debug.Dump(msg))
			onMessage(c, msg)
		},
		OnDisconnected: func(reason connector.DisconnectReason) {
			logger.Infof("disconnected: %s", reason)
			close(done)
		},
	})
	defer c.Close()

	network := connector.NewNetwork()
	network.Initialize()
	defer network.Shutdown()

	if err := c.Dial(ctx, network, *addressFlag); err != nil {
		return err
	}
	if err := c.Authenticate(); err != nil {
		return err
	}

	ticker := time.NewTicker(config.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				return err
			}
		}
	}
}

// onMessage drives the command line request once the client authenticated.
func onMessage(c *client.Client, msg interface{}) {
	var err error
	switch m := msg.(type) {
	case *protocol.AuthenticationAcknowledged:
		switch {
		case *listFlag:
			err = c.ListLobbies(nil)
		case *createFlag != "":
			err = c.CreateAndJoinLobby(&protocol.CreateAndJoinLobby{
				Username:  *usernameFlag,
				LobbyName: *createFlag,
				GameMode:  freeforall.Name,
			})
		case *joinFlag != "":
			err = c.JoinLobby(*joinFlag, *usernameFlag)
		}
	case *protocol.LobbyList:
		for _, l := range m.Lobbies {
			fmt.Printf("%s  %-24s %-12s %d/%d %s\n", l.Code, l.Name, l.GameMode, l.UserCount, l.MaxUserCount, l.State)
		}
		if *listFlag {
			err = c.Disconnect()
		}
	}
	if err != nil {
		fmt.Println("request failed:", err)
	}
}
