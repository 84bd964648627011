package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/auth"
	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/observability"
)

var (
	backendURL     string
	token          string
	conversationID string
)

func main() {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Talk to a marketplace conversation from the terminal",
	}

	root.PersistentFlags().StringVar(&backendURL, "backend", "", "backend base URL (default: BACKEND_BASE_URL)")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("CHAT_TOKEN"), "bearer token issued by the backend")
	root.PersistentFlags().StringVarP(&conversationID, "conversation", "C", "", "conversation id")

	root.AddCommand(watchCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(devTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// environment loads config, applies flag overrides and builds the logger.
func environment() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
	}
	cfg.Logger.Name = "chatctl"
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "stderr"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// sessionContext resolves the identity behind --token.
func sessionContext(cfg *config.Config) (domain.SessionContext, error) {
	if strings.TrimSpace(token) == "" {
		return domain.SessionContext{}, errors.New("--token or CHAT_TOKEN is required")
	}
	if conversationID == "" {
		return domain.SessionContext{}, errors.New("--conversation is required")
	}
	claims, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes).ParseToken(token)
	if err != nil {
		return domain.SessionContext{}, fmt.Errorf("parse token: %w", err)
	}
	return domain.SessionContext{UserID: claims.UserID, Account: claims.Account, Token: token}, nil
}

func devTokenCmd() *cobra.Command {
	var (
		userID  string
		account string
	)
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Sign a token with the local secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			accountType := domain.AccountType(strings.ToUpper(account))
			if !accountType.Valid() {
				return fmt.Errorf("unknown account type %q", account)
			}
			signed, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes).
				GenerateToken(userID, accountType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", signed)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&account, "account", string(domain.AccountTypeCustomer), "CUSTOMER or COMPANY")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
