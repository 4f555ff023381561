package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-pipeline/internal/assignment"
	appconfig "github.com/wolfman30/medspa-pipeline/internal/config"
	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// LeadStore bundles lead persistence. Activity, Pool and DB are nil when
// running in memory.
type LeadStore struct {
	Repo     leads.Repository
	Activity *leads.ActivityLog
	Pool     *pgxpool.Pool
	DB       *sql.DB
}

// Ping checks the database, if any.
func (s *LeadStore) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases database handles.
func (s *LeadStore) Close() {
	if s == nil {
		return
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// HandlerOptions returns the leads handler options the store can back.
func (s *LeadStore) HandlerOptions() []leads.HandlerOption {
	if s == nil || s.Activity == nil {
		return nil
	}
	return []leads.HandlerOption{leads.WithActivity(s.Activity)}
}

// BuildLeadStore connects to Postgres when DATABASE_URL is set and falls
// back to an in-memory repository otherwise.
func BuildLeadStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*LeadStore, error) {
	board, err := Board(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	initial := board.Stages[0]

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; leads are kept in memory")
		return &LeadStore{Repo: leads.NewInMemoryRepository(initial)}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)

	logger.Info("postgres connected", "initial_stage", initial)
	return &LeadStore{
		Repo:     leads.NewPostgresRepository(pool, initial),
		Activity: leads.NewActivityLog(db),
		Pool:     pool,
		DB:       db,
	}, nil
}

// BuildAssigner returns the qualification round-robin, or nil when no staff
// are configured.
func BuildAssigner(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*assignment.RoundRobin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	staff, err := assignment.ParseStaff(cfg.AssignmentStaff)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: assignment staff: %w", err)
	}
	if len(staff) == 0 {
		logger.Warn("ASSIGNMENT_STAFF empty; qualification disabled")
		return nil, nil
	}
	logger.Info("qualification round-robin enabled", "staff", len(staff), "shared_cursor", redisClient != nil)
	return assignment.NewRoundRobin(staff, redisClient, logger), nil
}

// Board builds the validated board layout.
func Board(cfg *appconfig.Config) (pipeline.BoardConfig, error) {
	if cfg == nil {
		return pipeline.BoardConfig{}, fmt.Errorf("bootstrap: config is required")
	}
	board := cfg.BoardConfig()
	if err := board.Validate(); err != nil {
		return pipeline.BoardConfig{}, fmt.Errorf("bootstrap: board config: %w", err)
	}
	return board, nil
}
