package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"household-expenses/internal/backend"
	"household-expenses/internal/config"
	"household-expenses/internal/logging"
	"household-expenses/internal/services"
)

const defaultDB = "expenses.db"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("adduser", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	relation := fs.String("relation", "self", "Relation to the household")
	admin := fs.Bool("admin", false, "Grant admin rights")
	dbURL := fs.String("db", "", "SQLite path or MongoDB URL (default $DATABASE_URL or "+defaultDB+")")
	reset := fs.Bool("reset", false, "Delete all expenses and the configuration first")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" && !*reset {
		fmt.Fprintln(stdout, "Usage: adduser --user <username> [--password <password>] [--relation <relation>] [--admin] [--reset] [--db <db>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	var password string
	if *username != "" {
		password = *passwordFlag
		if password == "" {
			fmt.Fprint(stdout, "Password: ")
			var err error
			password, err = readPassword(stdin)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			fmt.Fprintln(stdout) // Print newline after password input
		}

		if strings.TrimSpace(password) == "" {
			return fmt.Errorf("password cannot be empty")
		}
	}

	cfg := &config.Config{DatabaseURL: *dbURL, MongoDatabase: os.Getenv("MONGO_DATABASE")}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDB
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "expenses"
	}

	store, err := backend.Open(ctx, cfg, logging.NewWithOutput(stderr, "warn", "text"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if *reset {
		if err := store.ResetExpenseData(ctx); err != nil {
			return fmt.Errorf("failed to reset data: %w", err)
		}
		fmt.Fprintln(stdout, "Deleted all expenses and the configuration")
	}

	if *username != "" {
		creds := services.NewCredentialService(store)
		create := creds.Register
		if *admin {
			create = creds.CreateAdmin
		}

		user, err := create(ctx, *username, password, *relation)
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", *username, err)
		}

		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(stdout, "User %s created successfully with ID %s (%s)\n", user.Name, user.ID, role)
	}

	count, err := store.UserCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	fmt.Fprintf(stdout, "Users in database: %d\n", count)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
