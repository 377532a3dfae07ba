package config

import (
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

func InitDB(log *zap.Logger) *sql.DB {
	cfg := mysql.NewConfig()
	cfg.User = GetEnv("DB_USER", "root")
	cfg.Passwd = GetEnv("DB_PASS", "")
	cfg.Net = "tcp"
	cfg.Addr = GetEnv("DB_HOST", "127.0.0.1") + ":" + GetEnv("DB_PORT", "3306")
	cfg.DBName = GetEnv("DB_NAME", "antrian_klinik")
	cfg.ParseTime = true
	cfg.Loc = time.Local

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		log.Fatal("MySQL config salah", zap.Error(err))
	}

	db.SetMaxOpenConns(GetEnvInt("DB_MAX_OPEN", 10))
	db.SetMaxIdleConns(GetEnvInt("DB_MAX_IDLE", 5))
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("MySQL tidak nyambung", zap.Error(err))
	}

	log.Info("MySQL connected", zap.String("db", cfg.DBName))
	return db
}
