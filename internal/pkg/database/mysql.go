// Package database 负责建立 GORM 连接以及识别常见的 MySQL 错误。
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storefront/internal/pkg/logger"
)

// Options 是建连所需的最小配置
type Options struct {
	Addr            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN 用驱动自带的 Config 拼 DSN，避免手写转义
func (o Options) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = o.Addr
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open 建立连接池并探活
func Open(ctx context.Context, o Options) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(o.DSN()), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		SkipDefaultTransaction: true, // 需要事务的地方都显式开启
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql %s: %w", o.Addr, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if o.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(o.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping mysql %s: %w", o.Addr, err)
	}
	logger.L().Info().Str("addr", o.Addr).Str("db", o.Database).Msg("✅ Successfully connected to MySQL.")
	return db, nil
}

// Ping 用于 readiness 检查
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// MySQL 错误号
const (
	errDuplicateEntry = 1062
)

// IsDuplicateKey 判断是否违反唯一索引
func IsDuplicateKey(err error) bool {
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
