package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/analytics"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-realty-access/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/guard"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/router"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	sessionrepo "github.com/ovaphlow/pitchfork/service-realty-access/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/status"
	statusrepo "github.com/ovaphlow/pitchfork/service-realty-access/internal/status/repo"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-realty-access/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-realty-access/pkg/database"
	"github.com/ovaphlow/pitchfork/service-realty-access/pkg/utilities"
)

func main() {
	// best-effort: without a .env the real environment and defaults apply
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-realty-access")

	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := userrepo.NewUserRepo(db)
	profiles := sessionrepo.NewProfileRepo(db)
	approvals := statusrepo.NewApprovalRepo(db)
	subscriptions := statusrepo.NewSubscriptionRepo(db)
	refresh := authrepo.NewRefreshRepo(db)

	// order matters: profiles and refresh sessions reference users
	schema := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"users", users.EnsureTable},
		{"profiles", profiles.EnsureTable},
		{"agent_approvals", approvals.EnsureTable},
		{"agent_subscriptions", subscriptions.EnsureTable},
		{"auth_refresh_sessions", refresh.EnsureTable},
	}
	for _, s := range schema {
		if err := s.ensure(ctx); err != nil {
			sugar.Fatalf("ensure %s table: %v", s.name, err)
		}
	}

	authCfg := auth.ConfigFromEnv()
	tokens, err := auth.NewTokenService(refresh, authCfg)
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}
	if authCfg.SigningKeyFile == "" {
		sugar.Warn("AUTH_SIGNING_KEY_FILE not set; using an ephemeral signing key")
	}

	anaCfg := analytics.ConfigFromEnv()
	tracker := analytics.NewTracker(anaCfg, sugar)
	if anaCfg.Enabled {
		tracker.Init(analytics.LogSink{Logger: sugar.Named("analytics")})
	}

	userSvc := user.NewUserService(users, user.BcryptHasher{Cost: 12})
	node := snowflakeNode()

	handler := router.RegisterRoutes(router.Deps{
		Logger:        sugar,
		Sessions:      session.NewResolver(tokens, profiles, sugar),
		Guard:         guard.NewMiddleware(guard.DestinationsFromEnv(), sugar),
		Auth:          auth.NewHandler(tokens, userSvc, auth.NewLogout(tokens, authCfg, sugar), tracker, authCfg, sugar),
		Users:         user.NewHandler(userSvc, profiles, tracker, sugar),
		Status:        status.NewHandler(approvals, subscriptions, sugar),
		Analytics:     analytics.NewHandler(tracker, sugar),
		Tracker:       tracker,
		NewClientID:   func() string { return utilities.NewSnowflakeIDWithNode(node) },
		SecureCookies: authCfg.SecureCookies,
		CORS:          router.CORSOptionsFromEnv(),
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepRefreshSessions(ctx, refresh, time.Hour, sugar)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := tracker.Close(doneCtx); err != nil {
		sugar.Warnf("analytics flush failed: %v", err)
	}

	sugar.Info("goodbye")
}

type expiredSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// sweepRefreshSessions deletes expired refresh sessions every interval until ctx ends.
func sweepRefreshSessions(ctx context.Context, repo expiredSweeper, every time.Duration, logger *zap.SugaredLogger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				logger.Warnw("refresh sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Debugw("refresh sessions expired", "count", n)
			}
		}
	}
}

func snowflakeNode() int64 {
	n, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		return 1
	}
	return n
}
