package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ssuji15/scriptd/internal/component"
	"github.com/ssuji15/scriptd/internal/config"
	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/jobstore"
	"github.com/ssuji15/scriptd/internal/runner"
	"github.com/ssuji15/scriptd/internal/scheduler"
	jobservice "github.com/ssuji15/scriptd/internal/service/job_service"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/web"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger.Init(cfg.SERVICE_NAME)

	execCfg, err := config.GetExecutorConfig()
	if err != nil {
		log.Fatalf("executor config error: %v", err)
	}
	vars, err := config.LoadTemplateVariables(execCfg.TEMPLATE_VARS_PATH)
	if err != nil {
		log.Fatalf("template variables error: %v", err)
	}

	if cfg.TRACE_URL != "" {
		tp, err := job_tracer.InitTracer(ctx, cfg.SERVICE_NAME, cfg.TRACE_URL)
		if err != nil {
			log.Fatalf("error initialising trace: %v", err)
		}
		defer tp.Shutdown(context.Background())
	}

	cache, err := component.GetCache(ctx, cfg.CACHE_TYPE)
	if err != nil {
		log.Fatalf("cache initialization error: %v", err)
	}
	queue, err := component.GetQueue(cfg.QUEUE_TYPE)
	if err != nil {
		log.Fatalf("queue initialization error: %v", err)
	}
	storage, err := component.GetStorage(cfg.STORAGE_TYPE)
	if err != nil {
		log.Fatalf("storage initialization error: %v", err)
	}

	store, err := jobstore.NewStore(execCfg.JOB_OUTPUT_DIR)
	if err != nil {
		log.Fatalf("job store error: %v", err)
	}
	pool, err := scheduler.NewPool(execCfg.POOL_SIZE)
	if err != nil {
		log.Fatalf("task pool error: %v", err)
	}

	svc := jobservice.NewJobService(store, pool, runner.NewRunner(), jobservice.Settings{
		InterpreterPath: runner.InterpreterPath(execCfg.PYTHON_ENV_PATH),
		Timeout:         time.Duration(execCfg.TIMEOUT_SECONDS) * time.Second,
		Variables:       vars,
	}, cache, queue, storage)

	if _, err := svc.Recover(ctx); err != nil {
		log.Fatalf("job recovery error: %v", err)
	}

	server := web.NewServer(svc)
	srv := &http.Server{
		Addr:              cfg.HTTP_ADDR,
		Handler:           server.Router(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Log.Info().Str("addr", cfg.HTTP_ADDR).Int("workers", execCfg.POOL_SIZE).Msg("HTTP server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Log.Info().Msg("trying to shutdown server gracefully...")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Log.Error().Err(err).Msg("http server shutdown failed")
	}

	// queued jobs are still run; whatever is left past the deadline is
	// finalised by Recover on the next start
	pctx, pcancel := context.WithTimeout(context.Background(), time.Duration(execCfg.TIMEOUT_SECONDS+30)*time.Second)
	defer pcancel()
	if err := pool.Shutdown(pctx); err != nil {
		logger.Log.Error().Err(err).Int("pending", pool.Pending()).Int("active", pool.Active()).Msg("task pool did not drain")
	}

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()

	var g errgroup.Group
	shutdown := func(fn func(context.Context)) {
		g.Go(func() error {
			fn(cctx)
			return nil
		})
	}
	shutdown(cache.ShutDown)
	shutdown(queue.ShutDown)
	if storage != nil {
		shutdown(storage.ShutDown)
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info().Msg("server shutdown gracefully.")
	case <-cctx.Done():
		logger.Log.Info().Msg("server graceful shutdown timedout..")
	}
}
