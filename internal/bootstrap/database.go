package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-docpipe/config"
	"github.com/target/mmk-docpipe/internal/migrate"
)

const (
	connectTimeout  = 5 * time.Second
	applicationName = "docpipe"
)

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

func postgresConnConfig(cfg config.DBConfig) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig("sslmode=" + cfg.SSLMode)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	connCfg.Host = cfg.Host
	connCfg.Port = uint16(cfg.Port) //nolint:gosec // port is validated by config
	connCfg.User = cfg.User
	connCfg.Password = cfg.Password
	connCfg.Database = cfg.Name
	connCfg.ConnectTimeout = connectTimeout
	connCfg.RuntimeParams["application_name"] = applicationName
	return connCfg, nil
}

// ConnectDB opens the PostgreSQL pool through the pgx stdlib driver and pings it.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	connCfg, err := postgresConnConfig(cfg.DBConfig)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connCfg)
	// Every worker runner also holds a connection while it LISTENs.
	db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DBConfig.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConfig.ConnMaxLifetime)

	if err := pingOrClose(db.PingContext, db.Close); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"addr", net.JoinHostPort(cfg.DBConfig.Host, strconv.Itoa(cfg.DBConfig.Port)),
			"database", cfg.DBConfig.Name,
			"max_open_conns", cfg.DBConfig.MaxOpenConns,
		)
	}
	return db, nil
}

func pingOrClose(ping func(context.Context) error, closeFn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	err := ping(ctx)
	if err == nil {
		return nil
	}
	if closeErr := closeFn(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", closeErr))
	}
	return err
}

type redisMode int

const (
	redisDirect redisMode = iota
	redisSentinel
	redisCluster
)

// redisOptions resolves the configured topology into client options plus a
// credential-free description for logs.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisMode, string, error) {
	opts := &redis.UniversalOptions{
		ClientName: applicationName,
		Password:   cfg.Password,
		DB:         cfg.DB,
	}

	switch {
	case cfg.UseCluster:
		opts.Addrs = trimAll(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			if err := applyRedisURI(opts, cfg.URI); err != nil {
				return nil, 0, "", err
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, 0, "", errors.New("redis cluster requires at least one node")
		}
		return opts, redisCluster, "cluster:" + strings.Join(opts.Addrs, ","), nil

	case cfg.UseSentinel:
		opts.Addrs = trimAll(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, 0, "", errors.New("redis sentinel requires at least one sentinel node")
		}
		if cfg.SentinelMasterName == "" {
			return nil, 0, "", errors.New("redis sentinel requires a master name")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, redisSentinel, "sentinel:" + cfg.SentinelMasterName, nil

	default:
		uri := strings.TrimSpace(cfg.URI)
		if uri == "" {
			return nil, 0, "", errors.New("redis requires a URI")
		}
		if err := applyRedisURI(opts, uri); err != nil {
			return nil, 0, "", err
		}
		return opts, redisDirect, opts.Addrs[0], nil
	}
}

// applyRedisURI accepts redis:// and rediss:// URLs or a bare host:port.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ConnectRedis connects the document cache backend. It returns a nil client
// when Redis is disabled.
//
//nolint:ireturn // the configured topology decides the concrete client
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	if !cfg.RedisConfig.Enabled {
		return nil, nil
	}

	opts, mode, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingOrClose(ping, client.Close); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", desc)
	}
	return client, nil
}

// RunMigrations applies pending migrations and logs the resulting version.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger == nil {
		return nil
	}
	version, err := migrate.Version(ctx, db)
	if err != nil {
		logger.WarnContext(ctx, "read schema version failed", "error", err)
	}
	logger.InfoContext(ctx, "database migrations completed", "version", version)
	return nil
}
