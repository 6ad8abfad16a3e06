package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rechartable/archive"
	"rechartable/auth"
	"rechartable/db"
	"rechartable/httputil"
	"rechartable/insights"
	"rechartable/podcasts"
	"rechartable/providers"
	"rechartable/ratelimit"
	"rechartable/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	telemetry.Init()

	database, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, database.Dialect); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Snapshot archive. MinIO is optional; without it only fetch_history
	// rows are kept.
	store := &archive.Store{DB: database, Bucket: cfg.MinioBucket}
	if cfg.MinioEndpoint != "" {
		minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccess, cfg.MinioSecret, ""),
			Secure: cfg.MinioSSL,
		})
		if err != nil {
			log.Fatalf("failed to connect to minio: %v", err)
		}
		store.Client = minioClient
		if err := store.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed to ensure snapshot bucket: %v", err)
		}
	} else {
		log.Printf("MINIO_ENDPOINT not set, payload snapshots disabled")
	}

	registry := providers.NewRegistry()
	registry.Register(providers.PlatformRSS, providers.NewRSS())
	if cfg.YouTubeAPIKey != "" {
		registry.Register(providers.PlatformYouTube, &providers.YouTube{APIKey: cfg.YouTubeAPIKey})
	} else {
		log.Printf("YOUTUBE_API_KEY not set, YouTube URLs disabled")
	}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		registry.Register(providers.PlatformSpotify, &providers.Spotify{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
		})
	} else {
		log.Printf("Spotify credentials not set, Spotify URLs disabled")
	}

	authHandler := &auth.Handler{DB: database, JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}
	podcastHandler := &podcasts.Handler{DB: database, Providers: registry, Archive: store}
	insightHandler := &insights.Handler{DB: database}

	r := newRouter(cfg, authHandler, podcastHandler, insightHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("ReChartable API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}

func newRouter(cfg Config, authHandler *auth.Handler, podcastHandler *podcasts.Handler, insightHandler *insights.Handler) http.Handler {
	fetchLimiter := ratelimit.New(cfg.FetchRateLimit, time.Minute)
	insightLimiter := ratelimit.New(cfg.InsightRateLimit, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authHandler.Middleware)

			r.Get("/auth/me", authHandler.HandleMe)
			r.Post("/auth/logout", authHandler.HandleLogout)

			r.With(ratelimit.Middleware(fetchLimiter)).Post("/podcasts/fetch", podcastHandler.HandleFetch)
			r.Get("/podcasts", podcastHandler.HandleList)
			r.Get("/podcasts/{id}", podcastHandler.HandleGet)
			r.Put("/podcasts/{id}", podcastHandler.HandleUpdate)
			r.Delete("/podcasts/{id}", podcastHandler.HandleDelete)
			r.With(ratelimit.Middleware(fetchLimiter)).Post("/podcasts/{id}/refresh", podcastHandler.HandleRefresh)
			r.Get("/podcasts/{id}/history", podcastHandler.HandleHistory)

			for _, section := range []string{"analytics", "rankings", "audience", "monetization", "episodes"} {
				r.Get("/podcasts/{id}/"+section, podcastHandler.GetSection(section))
				r.Put("/podcasts/{id}/"+section, podcastHandler.PutSection(section))
			}

			r.With(ratelimit.Middleware(insightLimiter)).Post("/podcasts/{id}/insights", insightHandler.HandleGenerate)
			r.Get("/podcasts/{id}/insights", insightHandler.HandleList)
			r.Get("/insights/{insightID}", insightHandler.HandleGet)
			r.Delete("/insights/{insightID}", insightHandler.HandleDelete)
		})
	})

	return r
}
