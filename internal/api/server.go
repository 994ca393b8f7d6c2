package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ticketgate/internal/cache"
	"ticketgate/internal/config"
	"ticketgate/internal/credential"
	"ticketgate/internal/database"
	"ticketgate/internal/handlers"
	"ticketgate/internal/logger"
	"ticketgate/internal/messaging"
	"ticketgate/internal/middleware"
	"ticketgate/internal/models"
	"ticketgate/internal/notify"
	"ticketgate/internal/qr"
	"ticketgate/internal/repository"
	"ticketgate/internal/repository/memory"
	"ticketgate/internal/search"
	"ticketgate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	valkey   *cache.ValkeyClient
	services *service.Services
	users    middleware.UserLookup
	closers  []func() error
}

// NewServer создает новый экземпляр сервера и подключает все зависимости.
// Valkey, Elasticsearch и PubNub необязательны: при ошибке подключения
// сервер работает без них.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	issuer, err := credential.NewIssuer(cfg.Credential.Secret)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_SECRET: %w", err)
	}

	s := &Server{config: cfg}
	deps := service.Deps{
		Issuer:          issuer,
		Renderer:        qr.NewRenderer(cfg.Credential.QRSize),
		CredentialGrace: cfg.Credential.Grace,
	}

	switch cfg.StoreDriver {
	case "memory":
		store := memory.New()
		deps.Events, deps.Tickets, s.users = store.Events(), store.Tickets(), store.Users()
		if err := seedUsers(context.Background(), store.Users(), cfg.SeedUsers); err != nil {
			return nil, err
		}
		logger.Get().Warn("Using in-memory store, data is lost on restart", "seeded_users", len(cfg.SeedUsers))
	case "postgres", "":
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.closers = append(s.closers, db.Close)

		if err := db.RunMigrations(); err != nil {
			s.Cleanup()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repos := repository.NewRepositories(db)
		deps.Events, deps.Tickets, s.users = repos.Events, repos.Tickets, repos.Users
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	publisher, closePublisher, err := messaging.NewPublisher(cfg.NATS)
	if err != nil {
		s.Cleanup()
		return nil, err
	}
	deps.Publisher = publisher
	s.closers = append(s.closers, closePublisher)

	if cfg.Valkey.Enabled {
		valkey, err := cache.NewValkeyClient(cache.Config{
			Addr:         cfg.Valkey.Addr,
			Password:     cfg.Valkey.Password,
			UsersHashKey: cfg.Valkey.UsersHashKey,
			QRCacheTTL:   cfg.Valkey.QRCacheTTL,
		})
		if err != nil {
			logger.Get().Warn("Valkey unavailable, continuing without cache", "error", err)
		} else {
			s.valkey = valkey
			deps.QRCache = valkey
			s.closers = append(s.closers, valkey.Close)
		}
	}

	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			logger.Get().Warn("Elasticsearch unavailable, search uses the database", "error", err)
		} else {
			deps.Searcher = es
		}
	}

	if cfg.PubNub.Enabled() {
		deps.Notifier = notify.NewPubNubNotifier(notify.Config{
			PublishKey:   cfg.PubNub.PublishKey,
			SubscribeKey: cfg.PubNub.SubscribeKey,
			SecretKey:    cfg.PubNub.SecretKey,
			UserID:       cfg.PubNub.UserID,
		})
	}

	s.services = service.NewServices(deps)
	s.router = gin.New()
	s.router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.CORS(),
		middleware.Logger(),
		middleware.Timeout(cfg.RequestTimeout),
	)
	s.setupRoutes()

	return s, nil
}

type userCreator interface {
	Create(ctx context.Context, user *models.User) error
}

// seedUsers creates "email:password" accounts.
func seedUsers(ctx context.Context, users userCreator, entries []string) error {
	for _, entry := range entries {
		email, password, ok := strings.Cut(entry, ":")
		if !ok || email == "" {
			return fmt.Errorf("SEED_USERS: entry %q is not email:password", entry)
		}
		hash, err := middleware.HashPassword(password)
		if err != nil {
			return fmt.Errorf("SEED_USERS: %s: %w", email, err)
		}
		if err := users.Create(ctx, &models.User{Email: email, PasswordHash: hash, IsActive: true}); err != nil {
			return fmt.Errorf("SEED_USERS: %s: %w", email, err)
		}
	}
	return nil
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services)

	var authCache middleware.AuthCache
	if s.valkey != nil {
		authCache = s.valkey
	}

	api := s.router.Group("/api")
	// Обязательная Basic Auth для всех API роутов
	api.Use(middleware.BasicAuth(s.users, authCache))
	h.Register(api)

	s.router.GET("/health", s.healthCheck)
	if s.config.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "ticketgate-api",
		"store":   s.config.StoreDriver,
	}
	code := http.StatusOK

	if s.db != nil {
		health := s.db.HealthCheck(c.Request.Context())
		resp["database"] = health
		if health.Status != "healthy" {
			resp["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Ping(c.Request.Context()); err != nil {
			resp["cache"] = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			resp["cache"] = gin.H{"status": "healthy"}
		}
	}

	c.JSON(code, resp)
}

// Handler возвращает роутер для http.Server и тестов
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown ждет завершения фоновых уведомлений о проходе
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.services.Checkins.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending notifications: %w", ctx.Err())
	}
}

// Cleanup закрывает соединения в обратном порядке
func (s *Server) Cleanup() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Get().Error("Error closing connection", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.closers = nil
	return firstErr
}
