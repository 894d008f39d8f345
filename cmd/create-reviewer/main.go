// Command create-reviewer seeds a bcrypt-hashed reviewer identity, for use
// against C10's review checkpoints. Grounded on
// cmd/create-test-user/main.go's connect/check-exists/hash/insert shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/euria/council-engine/reviewstore"
)

func main() {
	username := flag.String("username", "", "reviewer login name (required)")
	password := flag.String("password", "", "reviewer password (required)")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("create-reviewer: -username and -password are required")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("create-reviewer: no .env file found, using environment variables")
	}

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		log.Fatal("create-reviewer: DATABASE_URL is required")
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		log.Fatalf("create-reviewer: connect to database: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()

	var existingID string
	err = pool.QueryRow(ctx, "SELECT id FROM reviewers WHERE username = $1", *username).Scan(&existingID)
	if err == nil {
		log.Fatalf("create-reviewer: reviewer %q already exists (id %s)", *username, existingID)
	}
	if err != pgx.ErrNoRows {
		log.Fatalf("create-reviewer: check existing reviewer: %v", err)
	}

	hash, err := reviewstore.HashReviewerPassword(*password)
	if err != nil {
		log.Fatalf("create-reviewer: hash password: %v", err)
	}

	var reviewerID string
	err = pool.QueryRow(ctx, `
		INSERT INTO reviewers (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, *username, hash).Scan(&reviewerID)
	if err != nil {
		log.Fatalf("create-reviewer: insert reviewer: %v", err)
	}

	fmt.Printf("reviewer created: id=%s username=%s\n", reviewerID, *username)
}
