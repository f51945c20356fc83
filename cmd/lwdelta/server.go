package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drpcorg/lwdelta/config"
	"github.com/drpcorg/lwdelta/connector"
	"github.com/drpcorg/lwdelta/connector/tcpconn"
	"github.com/drpcorg/lwdelta/connector/wsconn"
	"github.com/drpcorg/lwdelta/journal"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/network"
	"github.com/drpcorg/lwdelta/replicator"
	"github.com/drpcorg/lwdelta/repository"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type server struct {
	cfg      *config.Config
	log      utils.Logger
	journal  *journal.Journal
	ws       *wsconn.Server
	tcp      *tcpconn.Server
	mux      *connector.Mux
	repo     *repository.Repository
	registry *prometheus.Registry
}

func newServer(path string) (*server, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	s := &server{
		cfg:      cfg,
		log:      utils.NewLogger(os.Stderr, utils.ParseLevel(cfg.LogLevel), cfg.LogJson),
		registry: prometheus.NewRegistry(),
	}
	keyed, err := config.LoadLanguages(cfg.Languages)
	if err != nil {
		return nil, err
	}
	forest := model.NewForest()
	for _, p := range cfg.Partitions {
		root, err := p.Root(keyed)
		if err != nil {
			return nil, err
		}
		if err := forest.AddPartition(root); err != nil {
			return nil, err
		}
	}

	if cfg.Journal.Dir != "" {
		s.journal, err = journal.Open(journal.Options{
			Dir:    cfg.Journal.Dir,
			MaxLen: cfg.Journal.MaxLen,
			Sync:   cfg.Journal.Sync,
			Logger: s.log,
		})
		if err != nil {
			return nil, err
		}
		s.registry.MustRegister(s.journal.Collectors()...)
	}

	var conns []connector.Connector
	if cfg.Listen.Websocket != "" {
		s.ws = wsconn.NewServer(wsconn.Options{
			QueueLimit:  cfg.Queue.Limit,
			SendTimeout: cfg.Queue.Timeout,
			Logger:      s.log,
		})
		conns = append(conns, s.ws)
	}
	if cfg.Listen.TCP != "" {
		s.tcp = tcpconn.NewServer(tcpconn.Options{
			QueueLimit:  cfg.Queue.Limit,
			SendTimeout: cfg.Queue.Timeout,
			Logger:      s.log,
			Net:         []network.NetOpt{&network.NetWriteTimeoutOpt{Timeout: 5 * time.Second}},
		})
		conns = append(conns, s.tcp)
		s.registry.MustRegister(s.tcp.Collector())
	}
	s.mux = connector.NewMux(conns...)

	s.repo, err = repository.New(forest, keyed, s.mux, repository.Options{
		Participation:   cfg.Participation,
		Logger:          s.log,
		Journal:         s.journal,
		ReconnectWindow: cfg.ReconnectWindow,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.registry.MustRegister(repository.Collectors()...)
	s.registry.MustRegister(replicator.Collectors()...)
	s.registry.MustRegister(connector.Collectors()...)
	return s, nil
}

// run serves until ctx is done or SIGINT/SIGTERM arrives.
func (s *server) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var servers []*http.Server
	routers := map[string]*gin.Engine{}
	router := func(addr string) *gin.Engine {
		if r, ok := routers[addr]; ok {
			return r
		}
		r := gin.New()
		r.Use(gin.Recovery())
		routers[addr] = r
		servers = append(servers, &http.Server{Addr: addr, Handler: r})
		return r
	}
	if s.ws != nil {
		s.ws.Register(router(s.cfg.Listen.Websocket), s.cfg.Listen.Path)
	}
	if s.cfg.Listen.Metrics != "" {
		router(s.cfg.Listen.Metrics).GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			s.log.Info("lwdelta: serving http", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "http %s", srv.Addr)
			}
			return nil
		})
	}
	if s.tcp != nil {
		if err := s.tcp.Listen(s.cfg.Listen.TCP); err != nil {
			return errors.Wrapf(err, "listen %s", s.cfg.Listen.TCP)
		}
		s.log.Info("lwdelta: serving tcp", "addr", s.cfg.Listen.TCP)
	}

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("lwdelta: shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdown)
		}
		return s.close()
	})
	return g.Wait()
}

func (s *server) close() error {
	var errs []error
	if s.mux != nil {
		errs = append(errs, s.mux.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
