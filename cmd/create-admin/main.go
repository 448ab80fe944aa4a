// create-admin provisions or rotates an administrator account. Rotating the
// password secret also invalidates every session token issued against the
// old one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pwanimeetup/referral/internal/auth"
	"github.com/pwanimeetup/referral/internal/config"
	"github.com/pwanimeetup/referral/internal/database"
	"github.com/pwanimeetup/referral/internal/logging"
	"github.com/pwanimeetup/referral/internal/repository"
)

func main() {
	username := flag.String("username", "", "admin username")
	password := flag.String("password", "", "admin password")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: create-admin -username <name> -password <password>")
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

	secret, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to derive password secret: %v\n", err)
		os.Exit(1)
	}

	adminRepo := repository.NewAdminRepository(db.Postgres)
	if err := adminRepo.UpsertAdmin(ctx, *username, secret); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store admin account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Admin %q provisioned\n", *username)
}
