package main

import (
	"context"

	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/internal/database/sqldb"
	prefstore "foodietrack/backend/go/internal/preference_service/store"
	voicestore "foodietrack/backend/go/internal/voice_service/store"
	"foodietrack/backend/go/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables and indexes if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		logger.Init(cfg.Logger.Level)

		db, err := sqldb.Open(&cfg.Databases.SQL)
		if err != nil {
			return err
		}
		defer sqldb.Close(db)

		if err := ensureSchema(cmd.Context(), db); err != nil {
			return err
		}
		logger.New(cfg.App.Name, "", "").Info("Database migration completed")
		return nil
	},
}

// ensureSchema 创建所有表。服务启动时失败只记录日志，migrate 命令则直接报错。
func ensureSchema(ctx context.Context, db *gorm.DB) error {
	if err := prefstore.NewStore(db).EnsureSchema(ctx); err != nil {
		return err
	}
	return voicestore.NewStore(db).EnsureSchema(ctx)
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
