package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/elibrary/elibrary-go/internal/config"
	"github.com/elibrary/elibrary-go/internal/handler"
	"github.com/elibrary/elibrary-go/internal/middleware"
	"github.com/elibrary/elibrary-go/internal/repository"
	"github.com/elibrary/elibrary-go/internal/service"
	"github.com/elibrary/elibrary-go/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := repository.RunMigrations(context.Background(), db); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	assets, err := storage.New(context.Background(), cfg)
	if err != nil {
		slog.Error("asset store client failed", "error", err)
		os.Exit(1)
	}

	userRepo := repository.NewUserRepository(db)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	authHandler := handler.NewAuthHandler(authService)

	bookRepo := repository.NewBookRepository(db)
	bookService := service.NewBookService(bookRepo, assets)
	bookHandler := handler.NewBookHandler(bookService, cfg.UploadDir)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Message":"Welcome to the eLibrary API"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(5, 10))
		r.Post("/api/users", authHandler.HandleRegister)
		r.Post("/api/users/login", authHandler.HandleLogin)
	})

	r.Get("/api/books", bookHandler.HandleListBooks)
	r.Get("/api/books/{bookId}", bookHandler.HandleGetBook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.JWTSecret))
		r.Post("/api/books", bookHandler.HandleCreateBook)
		r.Patch("/api/books/{bookId}", bookHandler.HandleUpdateBook)
		r.Delete("/api/books/{bookId}", bookHandler.HandleDeleteBook)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
