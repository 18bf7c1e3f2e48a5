// Package confdb implements Configuration, the public facade over a
// pluggable configuration backend. It owns the caches, subscriptions, and
// internal actions, and enforces a fixed lock ordering: template-mutex,
// then implementation-mutex, then actions-mutex, then subscriber-mutex,
// with per-object mutexes taken only while that object is read or
// written.
package confdb

import (
	"context"
	"log/slog"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/online-daq/goconf/backend"
	"github.com/online-daq/goconf/cache"
	"github.com/online-daq/goconf/change"
	"github.com/online-daq/goconf/dispatch"
	cerrors "github.com/online-daq/goconf/errors"
	"github.com/online-daq/goconf/metrics"
	"github.com/online-daq/goconf/pluginloader"
	"github.com/online-daq/goconf/schema"
)

const (
	EnvBackend           = "CONFIG_BACKEND"
	EnvDefaultDB         = "CONFIG_DEFAULT_DB"
	EnvPrefetchAllData   = "CONFIG_PREFETCH_ALL_DATA"
	EnvPrintExpandedAggr = "CONFIG_PRINT_EXPANDED_AGGREGATIONS"
	EnvDebug             = "CONFIG_DEBUG"
	debugDumpValue       = "DEBUG"
)

// Configuration is the public facade over a pluggable backend.
type Configuration struct {
	templateMu sync.Mutex // protects hooks + wrapper-cache invariants
	implMu     sync.Mutex // protects registry, cache, be, loaded

	registry *schema.Registry
	oc       *cache.ObjectCache
	be       backend.Backend
	loaded   bool

	actions   *dispatch.ActionRegistry
	subs      *dispatch.SubscriberRegistry
	preChange *dispatch.PreChangeRegistry
	hooks     *dispatch.TemplateHooks

	notifyCh chan []change.Change
	stopCh   chan struct{}

	log *slog.Logger

	prefetchAll    bool
	printExpanded  bool
	profiling      bool
	profilingDebug bool

	loader *pluginloader.Loader
}

// Options configures a Configuration beyond what the CONFIG_* environment
// variables supply. Zero value uses the environment.
type Options struct {
	Logger     *slog.Logger
	PluginDir  string
	ForceDebug bool

	// ConfigFile, if set, is read with viper and can override any of the
	// CONFIG_* settings normally taken from the environment, layering a
	// config file over flags and environment the way viper is meant to.
	ConfigFile string
}

// newSettings resolves the module's environment variables through viper, so
// a config file (Options.ConfigFile) can override any of them without the
// caller needing to touch its own process environment.
func newSettings(opts Options) *viper.Viper {
	keys := []string{EnvBackend, EnvDefaultDB, EnvPrefetchAllData, EnvPrintExpandedAggr, EnvDebug}
	v := viper.New()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	if opts.ConfigFile != "" {
		file := viper.New()
		file.SetConfigFile(opts.ConfigFile)
		if err := file.ReadInConfig(); err == nil {
			for _, key := range keys {
				if file.IsSet(key) {
					v.Set(key, file.Get(key))
				}
			}
		}
	}
	return v
}

// New loads the backend named by spec (or by EnvBackend if spec is empty),
// opens dbName (or EnvDefaultDB if empty), and builds the initial schema
// registry.
func New(ctx context.Context, spec, dbName string, opts Options) (*Configuration, error) {
	settings := newSettings(opts)
	if spec == "" {
		spec = settings.GetString(EnvBackend)
	}
	loader := pluginloader.New(opts.PluginDir)
	be, err := loader.Load(spec, EnvBackend)
	if err != nil {
		return nil, err
	}
	return Open(ctx, be, loader, dbName, opts)
}

// Open builds a Configuration around an already-instantiated backend,
// bypassing plugin resolution. Used by New and by callers (including
// tests) that construct a backend directly, e.g. a membackend.Backend
// seeded with a fixture schema before OpenDB is ever called.
func Open(ctx context.Context, be backend.Backend, loader *pluginloader.Loader, dbName string, opts Options) (*Configuration, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := newSettings(opts)

	if dbName == "" {
		dbName = settings.GetString(EnvDefaultDB)
	}
	if dbName == "" {
		return nil, cerrors.NewGeneric("no database name given and " + EnvDefaultDB + " is not set")
	}

	c := &Configuration{
		registry:  schema.NewRegistry(),
		oc:        cache.New(),
		be:        be,
		actions:   dispatch.NewActionRegistry(),
		subs:      dispatch.NewSubscriberRegistry(),
		preChange: dispatch.NewPreChangeRegistry(),
		hooks:     dispatch.NewTemplateHooks(),
		notifyCh:  make(chan []change.Change, 64),
		stopCh:    make(chan struct{}),
		log:       logger,
		loader:    loader,

		prefetchAll:   settings.GetString(EnvPrefetchAllData) != "",
		printExpanded: settings.GetString(EnvPrintExpandedAggr) != "",
	}
	debugVal := settings.GetString(EnvDebug)
	c.profiling = debugVal != "" || opts.ForceDebug
	c.profilingDebug = debugVal == debugDumpValue

	if err := be.OpenDB(ctx, dbName); err != nil {
		return nil, cerrors.Wrap(err, "open database "+dbName)
	}
	c.loaded = true

	if err := c.reloadSchema(ctx); err != nil {
		return nil, err
	}

	if c.prefetchAll {
		if err := be.PrefetchAllData(ctx); err != nil {
			c.log.Error("prefetch failed", "error", err)
		}
	}

	go c.notifyLoop()

	return c, nil
}

// reloadSchema rebuilds the inheritance closure from the backend's
// superclass map. Must be called with implMu held, or before any other
// goroutine can observe c.
func (c *Configuration) reloadSchema(ctx context.Context) error {
	classes, err := c.be.GetSuperclasses(ctx)
	if err != nil {
		return cerrors.Wrap(err, "load schema")
	}
	c.registry.Rebuild(classes)
	return nil
}

// Close releases the backend and cache. It does not unload plugin
// modules — see the design notes on deferred dlclose.
func (c *Configuration) Close(ctx context.Context) error {
	close(c.stopCh)

	c.implMu.Lock()
	defer c.implMu.Unlock()

	if !c.loaded {
		return nil
	}

	var result *multierror.Error
	if err := c.be.Unsubscribe(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.be.CloseDB(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	c.loaded = false
	c.oc.Clean()
	c.registry.Unload()

	if err := result.ErrorOrNil(); err != nil {
		return cerrors.Wrap(err, "close database")
	}
	return nil
}

func (c *Configuration) requireLoaded() error {
	if !c.loaded {
		return cerrors.NewGeneric("no implementation loaded")
	}
	return nil
}

func (c *Configuration) recordCacheStats(class string, hit bool) {
	if hit {
		metrics.CacheHits.WithLabelValues(class).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(class).Inc()
	}
}
