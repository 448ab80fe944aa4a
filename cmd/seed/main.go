// seed bulk-loads the allowlist and the code pool from CSV exports using the
// same ingestion rules as the admin upload endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pwanimeetup/referral/internal/config"
	"github.com/pwanimeetup/referral/internal/database"
	"github.com/pwanimeetup/referral/internal/logging"
	"github.com/pwanimeetup/referral/internal/repository"
	"github.com/pwanimeetup/referral/internal/service"
)

func main() {
	emailsPath := flag.String("emails", "", "path to allowlist CSV (optional)")
	codesPath := flag.String("codes", "", "path to referral codes CSV (optional)")
	replace := flag.Bool("replace", false, "replace existing rows instead of merging")
	flag.Parse()

	if *emailsPath == "" && *codesPath == "" {
		fmt.Fprintln(os.Stderr, "usage: seed [-replace] [-emails emails.csv] [-codes codes.csv]")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg)

	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	adminService := service.NewAdminService(
		repository.NewAllowlistRepository(db.Postgres),
		repository.NewCodeRepository(db.Postgres),
		service.NewCountsCache(cfg.Referral.CountsTTL),
		cfg.Referral.URLBase,
		log,
	)

	if *emailsPath != "" {
		count, err := importFile(ctx, *emailsPath, *replace, adminService.ImportEmails)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed allowlist: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d allowed emails\n", count)
	}

	if *codesPath != "" {
		count, err := importFile(ctx, *codesPath, *replace, adminService.ImportCodes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed codes: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d referral codes\n", count)
	}
}

func importFile(ctx context.Context, path string, replace bool, load func(context.Context, io.Reader, bool) (int, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return load(ctx, f, replace)
}
