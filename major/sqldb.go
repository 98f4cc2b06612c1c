package major

import (
	"database/sql"
	"fmt"

	"live-notify-service/conf"
	"live-notify-service/logger"
	"live-notify-service/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	db    *gorm.DB
	sqlDB *sql.DB
)

// OpenDB 按配置的驱动打开数据库并迁移数据表
func OpenDB(driver, dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql", "":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported rds driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	raw, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlDB: %w", err)
	}
	if maxOpen > 0 {
		raw.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		raw.SetMaxIdleConns(maxIdle)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&models.Conversation{}, &models.Message{}, &models.Notification{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func InitSqlConfig() {
	gdb, err := OpenDB(conf.RdsDriver, conf.RdsDsn, conf.RdsMaxOpenConns, conf.RdsMaxIdleConns)
	if err != nil {
		panic(fmt.Errorf("DB init error %s", err.Error()))
	}
	sqlDB, _ = gdb.DB()
	db = gdb
	log := logger.Component("major")
	log.Info().Str("driver", conf.RdsDriver).Msg("database ready")
}

func GetSqlDB() *gorm.DB {
	return db
}

func CloseSqlDB() error {
	if sqlDB == nil {
		return nil
	}
	return sqlDB.Close()
}
