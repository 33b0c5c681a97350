// Command resetdb wipes the guild and character database after an interactive confirmation.
//
//	go run ./cmd/resetdb [config/config.yaml]
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kasuganosora/ashenguild/config"
	dbadapter "github.com/kasuganosora/ashenguild/db"
	"github.com/kasuganosora/ashenguild/maintenance"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(context.Background(), os.Stdin, os.Stdout, cfg.Database, logger); err != nil {
		logger.Fatal("reset failed", zap.Error(err))
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	fmt.Fprintln(out, "=== Guild database reset ===")
	fmt.Fprintf(out, "Database: %s\n\n", describe(dbCfg))
	fmt.Fprintln(out, "1. Clear data (keep schema)")
	fmt.Fprintln(out, "2. Remove the database file")
	fmt.Fprintln(out, "3. Cancel")
	fmt.Fprint(out, "Option: ")

	choice, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}

	switch strings.TrimSpace(choice) {
	case "1":
		db, err := dbadapter.Open(dbCfg, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		cleared, err := maintenance.ClearGuildData(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("guild data cleared", zap.Int64("guilds", cleared.Guilds), zap.Int64("members", cleared.Members))
		fmt.Fprintf(out, "Removed %d guilds and %d memberships.\n", cleared.Guilds, cleared.Members)
		chars, err := maintenance.ClearCharacterData(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("character data cleared",
			zap.Int64("characters", chars.Characters), zap.Int64("items", chars.Items), zap.Int64("holdings", chars.Holdings))
		fmt.Fprintf(out, "Removed %d characters, %d items and %d inventory entries.\n", chars.Characters, chars.Items, chars.Holdings)
	case "2":
		if dbCfg.Mode != dbadapter.ModeSQLite {
			return fmt.Errorf("removing the database file is only supported for sqlite, not %q", dbCfg.Mode)
		}
		removed, err := maintenance.RemoveDatabaseFile(dbCfg.SQLitePath)
		if err != nil {
			return err
		}
		if removed {
			logger.Info("database file removed", zap.String("path", dbCfg.SQLitePath))
			fmt.Fprintf(out, "Removed %s.\n", dbCfg.SQLitePath)
		} else {
			fmt.Fprintf(out, "%s does not exist.\n", dbCfg.SQLitePath)
		}
	default:
		fmt.Fprintln(out, "Cancelled.")
	}
	return nil
}

func describe(c config.DatabaseConfig) string {
	if c.Mode == dbadapter.ModeMySQL {
		return "mysql"
	}
	return "sqlite " + c.SQLitePath
}
