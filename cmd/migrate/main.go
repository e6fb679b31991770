package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"raine/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./raine.db", "Path to the database file")
	list := flag.Bool("list", false, "List embedded migrations and exit")
	flag.Parse()

	if *list {
		all, err := migrations.List()
		if err != nil {
			log.Fatalf("Failed to read migrations: %v", err)
		}
		for _, m := range all {
			fmt.Println(m.Version)
		}
		return
	}

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", *dbPath))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return
	}
	for _, version := range applied {
		fmt.Printf("Applied migration %s\n", version)
	}
	fmt.Println("Database schema updated. You can now restart Raine.")
}
