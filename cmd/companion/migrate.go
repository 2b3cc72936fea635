package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 处理 migrate 子命令；flag 写在子命令之前：
//
//	companion migrate --config conf.yaml up
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "conf.yaml", "Path to config file")
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, migration.Usage)
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	migrator, err := newMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(context.Background(), fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// newMigrator 优先使用命令行指定的数据库，否则读取配置的 database 段
func newMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		t, err := migration.ParseDatabaseType(dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{
			DatabaseType: t,
			DatabaseURL:  dbURL,
			TableName:    "schema_migrations",
		})
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return migration.NewMigratorFromConfig(cfg)
}

// migrateUp 在 serve 启动前应用迁移，仅对 sql 历史后端生效
func migrateUp(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.History.Backend != history.BackendSQL {
		logger.Info("Auto-migrate skipped", zap.String("history_backend", cfg.History.Backend))
		return nil
	}

	migrator, err := migration.NewMigratorFromConfig(cfg)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("Database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
