package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/config"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/services"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "JSON file to import")

	if len(os.Args) < 2 {
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := doExport(ctx, repo, os.Stdout); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	case "import":
		importCmd.Parse(os.Args[2:])
		if *importFile == "" {
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		file, err := os.Open(*importFile)
		if err != nil {
			log.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()

		imported, skipped, err := doImport(ctx, repo, file)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		log.Printf("Imported %d records, skipped %d", imported, skipped)
	default:
		fmt.Println("expected 'export' or 'import' subcommands")
		os.Exit(1)
	}
}

// doExport writes every record, passwords included, so an import restores them exactly.
func doExport(ctx context.Context, repo ports.RecordRepository, w io.Writer) error {
	records, err := repo.Dump(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.RoutingRecord{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

func doImport(ctx context.Context, repo ports.RecordRepository, r io.Reader) (imported, skipped int, err error) {
	var records []domain.RoutingRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, 0, fmt.Errorf("decode: %w", err)
	}

	for i := range records {
		rec := &records[i]
		// The resolver never looks up such keys, so storing them would strand the record.
		if !services.ValidKey(rec.Key) {
			log.Printf("Skipping invalid key: %q", rec.Key)
			skipped++
			continue
		}
		err := repo.InsertIfAbsent(ctx, rec)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, domain.ErrAlreadyExists):
			log.Printf("Skipping existing key: %s", rec.Key)
			skipped++
		default:
			return imported, skipped, fmt.Errorf("import %s: %w", rec.Key, err)
		}
	}
	return imported, skipped, nil
}
