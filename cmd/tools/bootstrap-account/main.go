// Command bootstrap-account seeds or resets an account in the datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		email       string
		displayName string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&displayName, "name", "Creator", "Display name for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		fatalf("--name cannot be empty")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)

	user, created, err := bootstrapAccount(repo, email, displayName, password)
	if err != nil {
		fatalf("bootstrap account: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Account %s (%s) %s successfully.\n", user.Email, user.DisplayName, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func bootstrapAccount(repo storage.Repository, email, displayName, password string) (models.User, bool, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if existing, ok := repo.FindUserByEmail(normalizedEmail); ok {
		return resetAccount(repo, existing, displayName, password)
	}

	user, err := repo.CreateUser(storage.CreateUserParams{
		DisplayName: displayName,
		Email:       normalizedEmail,
		Password:    password,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func resetAccount(repo storage.Repository, existing models.User, displayName, password string) (models.User, bool, error) {
	if existing.DisplayName != displayName {
		if _, err := repo.UpdateUser(existing.ID, storage.UserUpdate{DisplayName: &displayName}); err != nil {
			return models.User{}, false, err
		}
	}
	updated, err := repo.SetUserPassword(existing.ID, password)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
