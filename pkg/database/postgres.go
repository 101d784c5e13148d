package database

import (
	"context"
	"fmt"
	"github.com/Geniuskaa/participant_registry/internal/config"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zapadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"net"
	"net/url"
	"strconv"
	"time"
)

// PoolCreation connects the pgx pool described by conf.DB.
func PoolCreation(ctx context.Context, logger *zap.Logger, conf *config.Entity) (*pgxpool.Pool, error) {
	dbConf, err := pgxpool.ParseConfig(DSN(conf.DB))
	if err != nil {
		return nil, fmt.Errorf("poolCreation failed: %w", err)
	}
	dbConf.ConnConfig.Logger = zapadapter.NewLogger(logger)
	dbConf.ConnConfig.LogLevel = pgx.LogLevelError
	dbConf.MaxConnIdleTime = time.Second * 10
	if conf.DB.ConnLifeTime > 0 {
		dbConf.MaxConnLifetime = time.Duration(conf.DB.ConnLifeTime) * time.Minute
	}
	if conf.DB.MaxOpenConns > 0 {
		dbConf.MaxConns = conf.DB.MaxOpenConns
	}
	if conf.DB.MinConns > 0 {
		dbConf.MinConns = conf.DB.MinConns
	}

	pool, err := pgxpool.ConnectConfig(ctx, dbConf)
	if err != nil {
		return nil, fmt.Errorf("poolCreation failed: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("poolCreation failed: %w", err)
	}

	return pool, nil
}

// DSN renders a postgres URL, escaping credentials.
func DSN(db config.Database) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Pass),
		Host:   net.JoinHostPort(db.Hostname, strconv.Itoa(int(db.Port))),
		Path:   "/" + db.Name,
	}
	return u.String()
}
