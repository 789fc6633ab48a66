package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/routefleet/routefleet/internal/backup"
	"github.com/routefleet/routefleet/internal/server"
)

// runBackup implements the "routefleet backup" subcommand.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("output", "", "archive path (default routefleet-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dbPath := viperCfg.GetString("database.path")
	archivePath := *output
	if archivePath == "" {
		archivePath = fmt.Sprintf("routefleet-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), dbPath, viperCfg.ConfigFileUsed(), archivePath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archivePath)
}

// runRestore implements the "routefleet restore" subcommand.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	target := fs.String("target", "./data", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: routefleet restore [flags] <archive.tar.gz>")
		os.Exit(1)
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored to %s\n", *target)
}
