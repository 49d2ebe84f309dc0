// Command token mints owner tokens for the insight API.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/security"
)

func main() {
	owner := flag.String("owner", "", "owner id placed in the token subject")
	chatbots := flag.String("chatbots", "", "comma-separated chatbot ids; empty grants every chatbot")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	var ids []string
	for _, id := range strings.Split(*chatbots, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	manager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	token, err := manager.GenerateAccessToken(*owner, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
