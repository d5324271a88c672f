package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/activitypub"
	ap "github.com/vidpod/vidpod/internal/activitypub"
	"github.com/vidpod/vidpod/internal/group"
	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/models"
	"github.com/vidpod/vidpod/pods"
	"github.com/vidpod/vidpod/wellknown"
	"github.com/vidpod/vidpod/workers"
)

type ServeCmd struct {
	Addr string `help:"address to listen" default:"127.0.0.1:9000"`

	JobMaxAttempts int           `help:"number of attempts before a job is buried" default:"5"`
	JobBackoffBase time.Duration `help:"delay after the first failed attempt" default:"1s"`
	JobBackoffCap  time.Duration `help:"upper bound on the retry delay" default:"1m"`
	JobConcurrency int           `help:"number of jobs processed in parallel" default:"4"`
	JobTimeout     time.Duration `help:"timeout for a single job attempt" default:"1m"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr)
	if ctx.Debug {
		handler = slog.HandlerOptions{Level: slog.LevelDebug}.NewTextHandler(os.Stderr)
	}
	env := &models.Env{
		DB:     db,
		Logger: slog.New(handler),
	}

	server, err := models.NewAccounts(db).ServerAccount()
	if err != nil {
		return err
	}
	client, err := ap.NewClient(server)
	if err != nil {
		return err
	}
	scheduler, err := workers.NewScheduler(env, workers.Options{
		MaxAttempts:    s.JobMaxAttempts,
		BackoffBase:    s.JobBackoffBase,
		BackoffCap:     s.JobBackoffCap,
		Concurrency:    s.JobConcurrency,
		AttemptTimeout: s.JobTimeout,
	}, map[models.JobKind]workers.Handler{
		models.JobKindActivityBroadcast: workers.NewDeliveryHandler(env, client),
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	podsEnv := func(r *http.Request) *pods.Env {
		return &pods.Env{Env: env}
	}
	apEnv := func(r *http.Request) *activitypub.Env {
		return &activitypub.Env{Env: env}
	}
	wellknownEnv := func(r *http.Request) *wellknown.Env {
		return &wellknown.Env{Env: env}
	}

	r.Route("/pods", func(r chi.Router) {
		r.Post("/follow", httpx.HandlerFunc(podsEnv, pods.FollowCreate))
		r.Get("/following", httpx.HandlerFunc(podsEnv, pods.FollowingIndex))
		r.Get("/followers", httpx.HandlerFunc(podsEnv, pods.FollowersIndex))
	})
	r.With(activitypub.ValidateSignature(env)).Post("/inbox", httpx.HandlerFunc(apEnv, activitypub.InboxCreate))
	r.Route("/accounts/{name}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(apEnv, activitypub.ActorShow))
		r.With(activitypub.ValidateSignature(env)).Post("/inbox", httpx.HandlerFunc(apEnv, activitypub.InboxCreate))
	})
	r.Get("/.well-known/webfinger", httpx.HandlerFunc(wellknownEnv, wellknown.WebfingerShow))

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := group.New(signalCtx)
	g.AddContext(func(ctx context.Context) error {
		return scheduler.Run(ctx)
	})
	g.AddContext(func(ctx context.Context) error {
		err := svr.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.AddContext(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return svr.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
