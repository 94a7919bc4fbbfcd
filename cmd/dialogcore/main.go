// Command dialogcore is a thin wiring smoke driver: it builds a
// service.Service from environment variables, connects it to the
// configured relays and exposes a couple of read-only status endpoints.
// It is not a CLI front-end — argument parsing and an interactive command
// surface are out of scope for this core.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"dialogcore/internal/config"
	"dialogcore/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	opts := []config.Option{config.WithLogger(logger)}
	if path := os.Getenv("DIALOGCORE_SQLITE_PATH"); path != "" {
		opts = append(opts, config.WithSQLiteStorage(path))
	}
	if secret := os.Getenv("DIALOGCORE_IDENTITY_SECRET"); secret != "" {
		opts = append(opts, config.WithIdentitySecret(secret))
	}
	if relays := os.Getenv("DIALOGCORE_RELAYS"); relays != "" {
		opts = append(opts, config.WithRelays(strings.Split(relays, ",")...))
	}

	svc, err := service.Wire(config.New(opts...))
	if err != nil {
		logger.Fatal("wiring service", zap.Error(err))
	}
	if err := svc.Connect(context.Background()); err != nil {
		logger.Fatal("connecting to relays", zap.Error(err))
	}
	defer svc.Disconnect()

	http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": svc.Status().String()})
	})
	http.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		groups, err := svc.ListGroups()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(groups)
	})

	addr := os.Getenv("DIALOGCORE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	logger.Info("dialogcore listening", zap.String("addr", addr))
	logger.Fatal("http server exited", zap.Error(http.ListenAndServe(addr, nil)))
}
