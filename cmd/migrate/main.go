// Command migrate applies or rolls back the PostgreSQL schema.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"ms-settlement/internal/config"
	"ms-settlement/internal/database"
	"ms-settlement/internal/database/migrations"
	"ms-settlement/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dir     string
		version uint
	)
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", "", "migrations directory (default: MIGRATIONS_DIR or ./migrations)")
	flagSet.UintVar(&version, "version", 0, "target version for the 'to' command")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [--dir DIR] up|down|version|to --version N")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return fmt.Errorf("expected exactly one command")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations only run against postgres, driver is %q", cfg.Database.Driver)
	}
	if dir != "" {
		cfg.Database.MigrationsDir = dir
	}

	log := logger.New(os.Stdout)
	bunDB, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB.DB, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	switch cmd := flagSet.Arg(0); cmd {
	case "up":
		return runner.MigrateUp()
	case "down":
		return runner.MigrateDown()
	case "to":
		if !flagSet.Changed("version") {
			return fmt.Errorf("'to' needs --version")
		}
		return runner.MigrateTo(version)
	case "version":
		v, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
