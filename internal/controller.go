package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/core"
	"github.com/dcrodman/warpsync/internal/core/bans"
	"github.com/dcrodman/warpsync/internal/core/data"
	"github.com/dcrodman/warpsync/internal/core/debug"
	"github.com/dcrodman/warpsync/internal/gamemode"
	"github.com/dcrodman/warpsync/internal/gamemode/freeforall"
	"github.com/dcrodman/warpsync/internal/server"
)

// Controller is the main entrypoint for the session server. It's responsible
// for initializing any shared resources (such as database and logging),
// registering the game modes and running the server loop.
type Controller struct {
	Config *core.Config
	// Resources register the game modes offered by the server. The built-in
	// free for all mode is used when empty.
	Resources []gamemode.Resource

	logger  *logrus.Logger
	db      *gorm.DB
	network *connector.Network
	server  *server.Server
}

// Start blocks until ctx is canceled or the server fails to start.
func (c *Controller) Start(ctx context.Context) error {
	defer c.Shutdown()

	var err error
	// Set up the logger, which will be used by every component.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	c.db, err = data.Open(c.Config)
	if err != nil {
		return err
	}
	banList := bans.NewList(c.db, c.logger)
	if err := banList.Load(); err != nil {
		return err
	}

	modes, err := c.loadGameModes()
	if err != nil {
		return err
	}

	c.server = server.New(server.Options{
		Config:    c.Config,
		Logger:    c.logger,
		GameModes: modes,
		Bans:      banList,
	})

	c.network = connector.NewNetwork()
	c.network.Initialize()
	if err := c.server.Listen(c.network); err != nil {
		return err
	}
	c.logger.Infof("accepting peers on %v at %d ticks per second", c.server.Addr(), c.Config.TickRate)

	return c.server.Run(ctx)
}

func (c *Controller) loadGameModes() (*gamemode.Registry, error) {
	resources := c.Resources
	if len(resources) == 0 {
		resources = []gamemode.Resource{freeforall.Resource{}}
	}

	registry := gamemode.NewRegistry()
	var errs []error
	for _, resource := range resources {
		if err := registry.Load(resource); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("error loading game modes: %w", err)
	}
	c.logger.Infof("game modes available: %v", registry.Names())
	return registry, nil
}

// Shutdown releases everything Start acquired. The server disconnects its
// peers when its loop exits.
func (c *Controller) Shutdown() {
	if c.network != nil {
		if err := c.network.Shutdown(); err != nil {
			c.logger.Warnf("error shutting down network: %v", err)
		}
	}
	if c.db != nil {
		if err := data.Close(c.db); err != nil {
			c.logger.Errorf("error closing database: %v", err)
		}
	}
}
