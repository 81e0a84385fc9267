package tabterm

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
	"pkt.systems/tabterm/core"
	"pkt.systems/tabterm/httpapi"
	"pkt.systems/tabterm/internal/browser"
	"pkt.systems/tabterm/internal/eventbus"
	"pkt.systems/tabterm/internal/persist"
	"pkt.systems/tabterm/schema"
)

// Server composes the storage, page registry and HTTP bridge.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service     schema.ServiceConfig
	HTTP        httpapi.Config
	StoragePath string
}

// ServerDeps captures optional dependencies; zero values are built from
// the config.
type ServerDeps struct {
	Storage  core.Storage
	Flags    core.FeatureFlags
	Listener net.Listener
	Logger   pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP  bool
	enableWatch bool
}

// WithHTTP enables the HTTP/WebSocket bridge.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithStorageWatch reloads the file store when other processes change it.
func WithStorageWatch() ServerOption {
	return func(o *serverOptions) { o.enableWatch = true }
}

// New constructs a composable tabterm server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP {
		return nil, errors.New("no services enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	cfg.Service = schema.NormalizeServiceConfig(cfg.Service)

	storage := deps.Storage
	var fileStore *persist.Store
	if storage == nil {
		store, err := persist.OpenWithLogger(cfg.StoragePath, logger)
		if err != nil {
			return nil, err
		}
		storage = store
		fileStore = store
	} else if store, ok := storage.(*persist.Store); ok {
		fileStore = store
	}
	if options.enableWatch && fileStore == nil {
		return nil, errors.New("storage watch requires a file store")
	}

	bus := eventbus.New(logger)
	registry, err := browser.NewRegistry(browser.Config{
		Storage: storage,
		Bus:     bus,
		Flags:   deps.Flags,
		Service: cfg.Service,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &compositeServer{
		cfg:      cfg,
		options:  options,
		registry: registry,
		store:    fileStore,
		httpSrv:  httpapi.NewServer(cfg.HTTP, registry),
		listener: deps.Listener,
	}, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	registry *browser.Registry
	store    *persist.Store
	httpSrv  *httpapi.Server
	listener net.Listener
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(s.ctx)
	s.group = group
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	storagePath := ""
	if s.store != nil {
		storagePath = s.store.Path()
	}
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"storage_watch", s.options.enableWatch,
		"http_addr", s.cfg.HTTP.Addr,
		"storage", storagePath,
		"tmux_integration", s.cfg.Service.TmuxIntegration,
	)
	if s.options.enableHTTP {
		handler := s.httpSrv.Handler()
		group.Go(func() error {
			var err error
			if s.listener != nil {
				err = httpapi.Serve(groupCtx, s.listener, handler, s.cfg.HTTP.ShutdownTimeout)
			} else {
				err = httpapi.ListenAndServe(groupCtx, s.cfg.HTTP.Addr, handler, s.cfg.HTTP.ShutdownTimeout)
			}
			if err != nil {
				log.Error("http server failed", "err", err)
			}
			return err
		})
	}
	if s.options.enableWatch && s.store != nil {
		group.Go(func() error {
			if err := s.store.Watch(groupCtx); err != nil {
				log.Error("storage watch failed", "err", err)
				return err
			}
			return nil
		})
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	group := s.group
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	err := group.Wait()
	s.registry.Close()
	if err != nil {
		s.logger.Error("server stopped", "err", err)
		return err
	}
	return nil
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		s.registry.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
