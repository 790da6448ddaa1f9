// Command cleanup undoes the entries and returns recorded on one day.
//
//	cleanup -date 2025-12-23 -mode all
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/paletsayim/server/internal/config"
	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
	"github.com/paletsayim/server/internal/services"
)

func main() {
	date := flag.String("date", time.Now().Format(models.DateLayout), "day to clean up (YYYY-MM-DD)")
	modeFlag := flag.String("mode", string(services.CleanupAll), "all, entries or returns")
	flag.Parse()

	mode, err := services.ParseCleanupMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.GetLogger().SetLevel(observability.ParseLevel(cfg.LogLevel))

	var db *sql.DB
	var repo repository.PalletRepo
	if cfg.UsePostgres() {
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		repo = repository.NewPalletRepositoryPostgres(db)
	} else {
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		repo = repository.NewPalletRepository(db)
	}
	defer db.Close()

	result, err := services.NewCleanupService(repo).Run(context.Background(), *date, mode)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	fmt.Printf("%s: deleted %d entries, reset %d returns\n", result.Date, result.DeletedCount, result.ResetCount)
}
