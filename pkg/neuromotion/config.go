package neuromotion

import (
	"github.com/himanishpuri/NeuroMotion/internal/video"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
)

type Config struct {
	Pipeline   *config.Root
	Logger     *logger.Logger
	Store      Store
	Ledger     Ledger
	Backbone   Backbone
	ScanLoader ScanLoader
	Video      *video.Client
}

type Option func(*Config)

// WithConfig replaces the default pipeline configuration.
func WithConfig(cfg *config.Root) Option {
	return func(c *Config) {
		c.Pipeline = cfg
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStore(store Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func WithLedger(l Ledger) Option {
	return func(c *Config) {
		c.Ledger = l
	}
}

func WithBackbone(b Backbone) Option {
	return func(c *Config) {
		c.Backbone = b
	}
}

func WithScanLoader(l ScanLoader) Option {
	return func(c *Config) {
		c.ScanLoader = l
	}
}

// WithVideoURL points video generation at a generator service.
func WithVideoURL(url string) Option {
	return func(c *Config) {
		c.Video = video.NewClient(url)
	}
}

func defaultConfig() *Config {
	return &Config{
		Pipeline: config.Default(),
	}
}
