package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ticketgate/internal/cache"
	"ticketgate/internal/logger"
	"ticketgate/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIDKey       = "user_id"
	requestIDHeader = "X-Request-ID"
)

// UserLookup finds an account by its login.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthCache remembers verified email/password pairs. Optional.
type AuthCache interface {
	GetUserIDByAuth(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	SetUserAuth(ctx context.Context, email, passwordHash string, userID uuid.UUID) error
}

// UserID returns the authenticated user set by BasicAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func setUser(c *gin.Context, userID uuid.UUID) {
	c.Set(userIDKey, userID)
	c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), userID))
}

// RequestID присваивает каждому запросу идентификатор для логов
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logger логирует запросы, завершившиеся ошибкой
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			logFields = append(logFields, "error", c.Errors.String())
		}

		log := logger.WithContext(c.Request.Context())
		if status >= http.StatusInternalServerError {
			log.Error("Request completed with error", logFields...)
		} else {
			log.Warn("Request rejected", logFields...)
		}
	}
}

// Recovery middleware для восстановления после паники
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
		)

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "internal",
			})
		}
		c.Abort()
	})
}

// Timeout ограничивает время обработки запроса через контекст
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="ticketgate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "unauthorized"})
}

// BasicAuth аутентифицирует пользователя по HTTP Basic Auth: сначала кеш
// Valkey, затем БД. Пароль в БД хранится как bcrypt или как hex SHA-256.
func BasicAuth(users UserLookup, authCache AuthCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c)
			return
		}

		ctx := c.Request.Context()
		sum := sha256.Sum256([]byte(password))
		passwordHash := hex.EncodeToString(sum[:])

		if authCache != nil {
			userID, err := authCache.GetUserIDByAuth(ctx, email, passwordHash)
			if err == nil {
				setUser(c, userID)
				c.Next()
				return
			}
			if !errors.Is(err, cache.ErrMiss) {
				logger.WithContext(ctx).Warn("Auth cache lookup failed", "error", err)
			}
		}

		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to load user", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
			return
		}
		if user == nil || !user.IsActive || !verifyPassword(user.PasswordHash, password, passwordHash) {
			unauthorized(c)
			return
		}

		if authCache != nil {
			if err := authCache.SetUserAuth(ctx, email, passwordHash, user.ID); err != nil {
				logger.WithContext(ctx).Warn("Failed to cache auth", "error", err)
			}
		}

		setUser(c, user.ID)
		c.Next()
	}
}

func verifyPassword(stored, password, sha256Hex string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(sha256Hex)) == 1
}

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
