// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/database"
)

// runAdminCommand handles one-shot maintenance subcommands and reports
// whether it consumed the invocation. The server only starts when no
// subcommand is given.
//
//	umbra create-app -id APP1 -name "My Site"
func runAdminCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "create-app":
		createApp(args[1:])
		return true
	default:
		return false
	}
}

// createApp registers an app and prints its API key. The key is shown
// exactly once; only its hash is stored.
func createApp(args []string) {
	fs := flag.NewFlagSet("create-app", flag.ExitOnError)
	appID := fs.String("id", "", "app identifier (required)")
	name := fs.String("name", "", "human-readable app name")
	_ = fs.Parse(args)

	if *appID == "" {
		fmt.Fprintln(os.Stderr, "create-app: -id is required")
		fs.Usage()
		os.Exit(2)
	}
	if *name == "" {
		*name = *appID
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-app: load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-app: open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "create-app: generate key: %v\n", err)
		os.Exit(1)
	}
	apiKey := hex.EncodeToString(key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.CreateApp(ctx, *appID, *name, apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "create-app: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("App %s created.\nAPI key (store it now, it is not recoverable):\n%s\n", *appID, apiKey)
}
