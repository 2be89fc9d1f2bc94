package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"pictor/internal/config"
	"pictor/internal/logging"
	"pictor/internal/registry"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// withStore runs fn against an open registry store and closes it afterwards.
func (c *commandContext) withStore(fn func(*config.Config, *registry.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := registry.Open(cfg)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// resolveBag accepts a numeric registry ID or a bag identifier.
func resolveBag(ctx context.Context, store *registry.Store, ref string) (*registry.Bag, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		bag, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if bag != nil {
			return bag, nil
		}
	}
	bag, err := store.GetByIdentifier(ctx, ref)
	if err != nil {
		return nil, err
	}
	if bag == nil {
		return nil, fmt.Errorf("no bag matches %q", ref)
	}
	return bag, nil
}
