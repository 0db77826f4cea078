package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grandbridge/internal/advisor"
	"grandbridge/internal/cache"
	"grandbridge/internal/calendar"
	"grandbridge/internal/chat"
	"grandbridge/internal/handler"
	"grandbridge/internal/logging"
	"grandbridge/internal/mail"
	"grandbridge/internal/middleware"
	"grandbridge/internal/probe"
	"grandbridge/internal/store"
	"grandbridge/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	probeInterval   = 15 * time.Second
	purgeInterval   = time.Hour
)

type serveOptions struct {
	migrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server and the gRPC health service",
		Long: `Run the web server and the gRPC health service.

Redis, NATS, Google Calendar, Gemini and SendGrid are optional; each is
enabled when its settings are present in the environment.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "apply pending migrations on start")
	return cmd
}

func runServe(rootOpts *RootOptions, opts *serveOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, log, err := rootOpts.load(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	// database
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info("connected to postgres")

	if opts.migrate {
		applied, err := st.Migrate(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			log.Info("migration applied", zap.String("name", name))
		}
	}

	c := cache.New(ctx, cfg.RedisURL, log)
	defer c.Close()

	hub := chat.NewHub(log)
	if cfg.NATSURL != "" {
		nc, err := chat.Connect(cfg.NATSURL, log)
		if err != nil {
			log.Warn("nats unavailable, chat stays local", zap.Error(err))
		} else {
			defer nc.Drain()
			if err := hub.Attach(nc); err != nil {
				return fmt.Errorf("nats subscribe: %w", err)
			}
			log.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
		}
	}

	deps := handler.Deps{
		Store:    st,
		Config:   cfg,
		Log:      log,
		Sessions: middleware.NewSessions(st, cfg.JWTSecret, cfg.CookieSecure, log),
		Limiter:  middleware.NewRateLimiter(ctx, cfg.AuthRPS, cfg.AuthBurst),
		Cache:    c,
		Hub:      hub,
	}
	if cfg.GoogleEnabled() {
		deps.Google = calendar.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.BaseURL+"/callback", c, cfg.CacheTTL, cfg.Location())
	}
	switch gem, err := advisor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); {
	case err == nil:
		deps.Advisor = gem
	case errors.Is(err, advisor.ErrDisabled):
		log.Info("nutrition advisor disabled")
	default:
		log.Warn("nutrition advisor unavailable", zap.Error(err))
	}
	if cfg.SendGridKey != "" {
		deps.Mailer = mail.NewSendGrid(cfg.SendGridKey, cfg.MailFrom, log)
	}

	e, err := newEcho(log)
	if err != nil {
		return err
	}
	handler.New(deps).Routes(e)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	health := probe.New(st, log, probeInterval, deps.Limiter.Unary())

	srv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Serve(gctx, lis)
	})
	g.Go(func() error {
		log.Info("web listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		purgeRefreshTokens(gctx, st, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		health.Stop()
		return err
	})
	return g.Wait()
}

func newEcho(log *zap.Logger) (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		echomw.BodyLimit("64M"),
		logging.Requests(log),
	)
	e.StaticFS("/static", web.Static())
	return e, nil
}

// purgeRefreshTokens deletes expired refresh tokens once an hour.
func purgeRefreshTokens(ctx context.Context, st *store.Store, log *zap.Logger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := st.PurgeExpiredRefreshTokens(ctx, now)
			if err != nil {
				log.Warn("purge refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
