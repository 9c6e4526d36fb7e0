// Command hypeshelf-admin changes a user's role directly in the store.
//
// It is the only way to create the first admin: the user signs in and
// creates something (so their record exists), then an operator runs
//
//	hypeshelf-admin promote -subject github:12345
//
// demote is the inverse. Records are never created here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/config"
	"github.com/hypeshelf/hypeshelf/internal/model"
	sqliteRepo "github.com/hypeshelf/hypeshelf/internal/repository/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	if err := run(context.Background(), os.Args[1:], cfg.DBPath, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: hypeshelf-admin <promote|demote> -subject <external id> [-db <path>]")
}

func run(ctx context.Context, args []string, defaultDB string, out io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}

	var role model.Role
	switch args[0] {
	case "promote":
		role = model.RoleAdmin
	case "demote":
		role = model.RoleUser
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}

	fset := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fset.SetOutput(out)
	subject := fset.String("subject", "", "external identity of the user, e.g. github:12345")
	dbPath := fset.String("db", defaultDB, "path to the SQLite database")
	if err := fset.Parse(args[1:]); err != nil {
		return err
	}
	if *subject == "" {
		usage(out)
		return errors.New("-subject is required")
	}

	db, err := sqliteRepo.New(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.WithinTx(ctx, func(ctx context.Context) error {
		user, err := db.GetUserByExternalID(ctx, *subject)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return fmt.Errorf("no user record for %s: the user must sign in and create something first", *subject)
			}
			return err
		}

		if err := db.SetRole(ctx, user.ID, role); err != nil {
			return err
		}

		logger.Info("role changed by operator",
			slog.String("subject", *subject),
			slog.String("userID", user.ID),
			slog.String("from", string(user.EffectiveRole())),
			slog.String("to", string(role)),
		)
		fmt.Fprintf(out, "%s (%s) is now %s\n", *subject, user.ID, role)
		return nil
	})
}
