package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/gen"
	"watchearn/pkg/logger"
	"watchearn/pkg/middleware"
	"watchearn/services/account"
	"watchearn/services/bootstrap"
	"watchearn/services/video"
)

var (
	users    = flag.String("users", "demo-user", "comma separated user ids to open")
	tokenTTL = flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		bootstrap.Module,
		account.Module,
		video.Module,
		fx.Invoke(run),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(context.Background())
}

// run is invoked after bootstrap, so its hook starts once the schema exists.
func run(lc fx.Lifecycle, cfg *config.Config, accounts *account.Service, videos *video.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return seed(ctx, cfg, accounts, videos)
		},
	})
}

func seed(ctx context.Context, cfg *config.Config, accounts *account.Service, videos *video.Service) error {
	catalog := defaultCatalog()
	if err := videos.Upsert(ctx, catalog...); err != nil {
		return err
	}
	zap.L().Info("[seed] Catalog upserted", zap.Int("videos", len(catalog)))

	for _, id := range strings.Split(*users, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := accounts.Open(ctx, id); err != nil {
			return err
		}

		if cfg.Auth.JWTSecret == "" {
			zap.L().Warn("[seed] AUTH_JWT_SECRET is empty, no token printed", zap.String("user_id", id))
			continue
		}
		token, err := middleware.GenerateToken(cfg.Auth.JWTSecret, id, *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\n", id, token)
	}
	return nil
}

func defaultCatalog() []*video.Video {
	type entry struct {
		id, title, category string
		duration            int
	}
	entries := []entry{
		{"demo-001", "Morning Market Update", "news", 60},
		{"demo-002", "Street Food Tour", "food", 120},
		{"demo-003", "Cricket Highlights", "sports", 90},
		{"demo-004", "Budget Travel Tips", "travel", 150},
		{"demo-005", "Phone Camera Tricks", "tech", 75},
		{"demo-006", "Five Minute Workout", "health", 300},
		{"demo-007", "Learn Urdu Calligraphy", "education", 240},
		{"demo-008", "Stand-up Shorts", "comedy", 45},
	}

	now := time.Now().UTC()
	out := make([]*video.Video, 0, len(entries))
	for i, e := range entries {
		out = append(out, &video.Video{
			ID:              e.id,
			Title:           e.title,
			URL:             "https://cdn.example.com/videos/" + e.id + ".mp4",
			ThumbnailURL:    "https://cdn.example.com/thumbs/" + e.id + ".jpg",
			Category:        e.category,
			DurationSeconds: e.duration,
			EarningAmount:   decimal.Zero,
			Active:          true,
			CreatedAt:       now.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}
