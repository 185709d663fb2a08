package db

import (
	"context"
	"fmt"
	"time"

	"joinmatch/config"
	"joinmatch/logs"
	"joinmatch/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

// ormLogger пишет SQL-ошибки и медленные запросы в logrus; промах по первичному ключу ошибкой не считается
func ormLogger() logger.Interface {
	return logger.New(logs.For("gorm"), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
			NoLowerCase:   false,
		},
		Logger:         ormLogger(),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Open открывает подключение через переданный диалект (postgres в проде, sqlite в тестах) и накатывает схему
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	orm, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		// у каждого соединения к :memory: своя база
		sqlDB, err := orm.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err = Migrate(orm); err != nil {
		return nil, err
	}
	return orm, nil
}

// Migrate создает таблицы и индексы; для postgres дополнительно ограничения CHECK и внешние ключи
func Migrate(orm *gorm.DB) error {
	if err := orm.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if orm.Dialector.Name() == "postgres" {
		return CreateConstraints(orm)
	}
	return nil
}

// ConnectDB подключается к мастеру и репликам из config.AppConfig
func ConnectDB() (err error) {
	log := logs.For("db")
	if ORM != nil {
		log.Info("ORM is already initialized")
		return nil
	}

	var conf = config.AppConfig
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}
	if conf.Databases.Master.Host == "" {
		return fmt.Errorf("master database configuration is missing")
	}

	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	orm, err := gorm.Open(postgres.Open(dsnFromConfig(conf.Databases.Master)), gormConfig())
	if err != nil {
		return err
	}

	if len(replicaDSNs) > 0 {
		err = orm.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return
		}
	}

	if err = Migrate(orm); err != nil {
		return err
	}
	log.WithField("replicas", len(replicaDSNs)).Info("database connected")

	ORM = orm
	return nil
}

// GetReadOnlyDB возвращает подключение для чтения (реплики, если настроены).
// Результат - отдельная сессия, его можно использовать для нескольких запросов подряд
func GetReadOnlyDB(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Read).Session(&gorm.Session{})
}

// GetWriteDB возвращает подключение для записи (мастер)
func GetWriteDB(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Write).Session(&gorm.Session{})
}
