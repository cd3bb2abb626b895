// Package app owns one charoster process context: the notification hub, the
// definition registry, the entity manager, the image cache and pack
// discovery, all built from one configuration and sharing one filesystem.
//
// Components hold no package-level state. Reset reinitializes every cache
// in one synchronous pass and re-seeds the built-in definitions.
package app

import (
	"context"
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/definitions"
	"github.com/conneroisu/charoster/internal/entities"
	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/imagecache"
	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/loader"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/notify"
	"github.com/conneroisu/charoster/internal/packs"
	"github.com/conneroisu/charoster/internal/tempstore"
	"github.com/conneroisu/charoster/internal/types"
)

// App is the process context
type App struct {
	config *config.Config
	logger logging.Logger

	hub       *notify.Hub
	collector *errors.Collector
	handler   *errors.ErrorHandler
	loader    *loader.Loader
	temp      interfaces.TempFiles
	store     *tempstore.Store // owned temp store, nil when one was injected

	registry  *definitions.Registry
	entities  *entities.Manager
	images    *imagecache.Cache
	discovery *packs.Discovery

	resetMutex sync.Mutex
	closeOnce  sync.Once
}

type options struct {
	fs     afero.Fs
	logger logging.Logger
	codec  interfaces.Codec
	temp   interfaces.TempFiles
}

// Option customizes New
type Option func(*options)

// WithFs reads packs from fs instead of the OS filesystem
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger replaces the logger built from the configuration
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCodec replaces the raster codec
func WithCodec(codec interfaces.Codec) Option {
	return func(o *options) { o.codec = codec }
}

// WithTempFiles replaces the temp store for derived images
func WithTempFiles(temp interfaces.TempFiles) Option {
	return func(o *options) { o.temp = temp }
}

// New builds every component from cfg
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "configuration is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = newLogger(cfg)
	}

	a := &App{
		config:    cfg,
		logger:    o.logger,
		hub:       notify.NewHub(),
		collector: errors.NewCollector(),
		loader:    loader.New(o.fs),
	}
	a.handler = errors.NewErrorHandler(a.logger, errors.MultiNotifier{a.collector, a.hub})

	a.temp = o.temp
	if a.temp == nil {
		store, err := tempstore.New(cfg.TempPath())
		if err != nil {
			a.logger.Warn(context.Background(), err, "Derived images will be kept in memory", "path", cfg.TempPath())
		} else {
			a.store = store
			a.temp = store
		}
	}

	a.registry = definitions.NewRegistry(cfg, a.loader, a.hub, a.handler, a.logger)
	a.entities = entities.NewManager(cfg, a.loader, a.registry, a.hub, a.handler, a.logger)
	a.images = imagecache.New(cfg, a.entities, a.loader, o.codec, a.temp, a.handler, a.logger)
	a.discovery = packs.New(cfg, a.loader, a.registry, a.entities, a.hub, a.handler, a.logger)
	return a, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Component: "charoster",
	})
}

// Start discovers the packs of the work folder. It fails with a
// configuration error when no work folder is set.
func (a *App) Start(ctx context.Context) ([]*packs.Manifest, error) {
	return a.discovery.Discover(ctx)
}

// Reset clears every cache, re-seeds the built-in definitions and emits the
// reset notification. Loads that were in flight settle empty.
func (a *App) Reset(ctx context.Context) {
	a.resetMutex.Lock()
	defer a.resetMutex.Unlock()

	a.registry.Reset(ctx)
	a.entities.Reset(ctx)
	a.images.Reset(ctx)
	a.discovery.Reset()
	a.collector.Clear()

	a.logger.Info(ctx, "Application state reset")
	a.hub.Notify(types.EventTypeReset, nil)
}

// Reload resets and then rediscovers the packs
func (a *App) Reload(ctx context.Context) ([]*packs.Manifest, error) {
	a.Reset(ctx)
	return a.Start(ctx)
}

// AwaitIdle blocks until the definition, entity and image queues are drained
func (a *App) AwaitIdle(ctx context.Context) error {
	if err := a.registry.AwaitQueue(ctx); err != nil {
		return err
	}
	for _, kind := range types.EntityTypes() {
		if err := a.entities.AwaitQueue(ctx, kind, nil); err != nil {
			return err
		}
	}
	return a.images.AwaitQueue(ctx)
}

// GetDefinition returns a copy of a registered definition, waiting for it
// to be registered
func (a *App) GetDefinition(ctx context.Context, id string) (*types.Definition, error) {
	return a.registry.GetDefinition(ctx, id)
}

// GetDefinitionValue returns one processed field of a definition entity
func (a *App) GetDefinitionValue(ctx context.Context, definitionID string, keys []string, field, fromPack string) (interface{}, error) {
	return a.registry.GetDefinitionEntityValue(ctx, definitionID, keys, field, fromPack)
}

// GetDefinitionEntity returns a definition entity, loading it on demand
func (a *App) GetDefinitionEntity(ctx context.Context, definitionID string, keys []string, fromPack string) (types.Entity, error) {
	return a.registry.LoadDefinitionEntity(ctx, definitionID, keys, fromPack)
}

// GetEntityList returns the loaded entities of a type, or the listed ones
func (a *App) GetEntityList(ctx context.Context, kind types.EntityType, filter []string) (map[string]types.Entity, error) {
	return a.entities.GetEntityList(ctx, kind, filter)
}

// GetEntity returns one entity, loading it on demand
func (a *App) GetEntity(ctx context.Context, kind types.EntityType, id string) (types.Entity, error) {
	return a.entities.GetEntity(ctx, kind, id)
}

// GetAltImage returns a derived image or nil
func (a *App) GetAltImage(ctx context.Context, req imagecache.Request) ([]byte, error) {
	return a.images.GetAltImage(ctx, req)
}

// Packs returns the discovered packs
func (a *App) Packs() []*packs.Manifest { return a.discovery.Packs() }

// Definitions returns the registered definition ids
func (a *App) Definitions() []string { return a.registry.Definitions() }

// Errors returns the errors collected since the last reset
func (a *App) Errors() []errors.Record { return a.collector.Records() }

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config { return a.config }

// Logger returns the app logger
func (a *App) Logger() logging.Logger { return a.logger }

// Hub returns the notification hub
func (a *App) Hub() *notify.Hub { return a.hub }

// Images returns the image cache
func (a *App) Images() *imagecache.Cache { return a.images }

// Entities returns the entity manager
func (a *App) Entities() *entities.Manager { return a.entities }

// Status summarizes the state of every component
func (a *App) Status() map[string]interface{} {
	counts := make(map[string]int)
	for _, kind := range types.EntityTypes() {
		counts[string(kind)] = len(a.entities.IDs(kind))
	}
	sent, dropped := a.hub.Stats()

	return map[string]interface{}{
		"work_folder":    a.config.WorkFolder(),
		"packs":          len(a.discovery.Packs()),
		"definitions":    len(a.registry.Definitions()),
		"entities":       counts,
		"images":         a.images.Stats(),
		"cached_images":  a.images.Len(),
		"errors":         a.collector.Count(""),
		"watchers":       a.hub.Watchers(),
		"events_sent":    sent,
		"events_dropped": dropped,
	}
}

// Close stops every queue worker and releases the temp store
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.images.Close()
		a.entities.Close()
		a.registry.Close()
		a.hub.Close()
		if a.store != nil {
			err = a.store.Close()
		}
	})
	return err
}
