package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when the key is not cached.
var ErrMiss = errors.New("cache miss")

type ValkeyClient struct {
	client       *redis.Client
	usersHashKey string
	qrTTL        time.Duration
}

type Config struct {
	Addr         string
	Password     string
	UsersHashKey string
	QRCacheTTL   time.Duration
}

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return NewValkeyClientWith(rdb, cfg), nil
}

// NewValkeyClientWith wraps an existing client without pinging it.
func NewValkeyClientWith(rdb *redis.Client, cfg Config) *ValkeyClient {
	if cfg.UsersHashKey == "" {
		cfg.UsersHashKey = "users:auth"
	}
	return &ValkeyClient{
		client:       rdb,
		usersHashKey: cfg.UsersHashKey,
		qrTTL:        cfg.QRCacheTTL,
	}
}

func authField(email, passwordHash string) string {
	return base64.StdEncoding.EncodeToString([]byte(email + ":" + passwordHash))
}

func qrKey(ticketID uuid.UUID) string {
	return "qr:" + ticketID.String()
}

func (v *ValkeyClient) GetUserIDByAuth(ctx context.Context, email, passwordHash string) (uuid.UUID, error) {
	userIDStr, err := v.client.HGet(ctx, v.usersHashKey, authField(email, passwordHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrMiss
		}
		return uuid.Nil, fmt.Errorf("cache lookup error: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID in cache: %w", err)
	}

	return userID, nil
}

func (v *ValkeyClient) SetUserAuth(ctx context.Context, email, passwordHash string, userID uuid.UUID) error {
	return v.client.HSet(ctx, v.usersHashKey, authField(email, passwordHash), userID.String()).Err()
}

// GetQR returns the rendered QR image for a ticket.
func (v *ValkeyClient) GetQR(ctx context.Context, ticketID uuid.UUID) ([]byte, error) {
	png, err := v.client.Get(ctx, qrKey(ticketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	return png, nil
}

func (v *ValkeyClient) SetQR(ctx context.Context, ticketID uuid.UUID, png []byte) error {
	return v.client.Set(ctx, qrKey(ticketID), png, v.qrTTL).Err()
}

func (v *ValkeyClient) DeleteQR(ctx context.Context, ticketID uuid.UUID) error {
	return v.client.Del(ctx, qrKey(ticketID)).Err()
}

func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
