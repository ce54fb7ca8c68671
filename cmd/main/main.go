package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-push/src/auth"
	"device-push/src/config"
	"device-push/src/interfaces"
	"device-push/src/logger"
	"device-push/src/server"
	"device-push/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.MConfig, cfg.Name)
	defer appLogger.Sync()

	// Setup session journal storage
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	case "none":
		db = storage.NewNoopDB()
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(cfg.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init journal db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate journal db: %v", err)
	}

	// Token verifier (external authenticators plug in via the same interface)
	verifier := auth.NewStaticVerifier(cfg.MConfig, appLogger)

	// Push server: registries are constructed once here and torn down at
	// shutdown; nothing else may create them.
	pushServer := server.NewPushServer(cfg.MConfig, appLogger, verifier, db)

	// Periodic journal retention cleanup
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -cfg.Storage.RetentionDays)
				if err := db.CleanupOldEvents(cutoff); err != nil {
					appLogger.Warning("Journal cleanup failed: %v", err)
				}
			case <-stopCleanup:
				return
			}
		}
	}()

	// Run server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- pushServer.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info("Received signal %v, shutting down", sig)
	case err := <-serverErr:
		appLogger.Error("Server stopped: %v", err)
	}

	close(stopCleanup)
	if err := pushServer.Stop(); err != nil {
		appLogger.Error("Server shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		appLogger.Error("Journal close error: %v", err)
	}
}
