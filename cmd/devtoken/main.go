// Command devtoken mints an access token for local testing against the API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/benestar-app/benestar/internal/auth"
	"github.com/benestar-app/benestar/internal/config"
)

func main() {
	userID := flag.String("user", "", "user id placed in the uid claim")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if len(cfg.JWT.AccessSecret) < 32 {
		slog.Error("JWT_ACCESS_SECRET must be at least 32 characters")
		os.Exit(1)
	}

	mgr := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry)
	token, err := mgr.Generate(*userID)
	if err != nil {
		slog.Error("minting token", "error", err)
		os.Exit(1)
	}
	slog.Info("token minted", "user_id", *userID, "expires_in", mgr.AccessExpiry())
	fmt.Println(token)
}
