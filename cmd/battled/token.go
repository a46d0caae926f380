package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/neo/battlearena/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenUserID   string
	tokenUsername string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a player JWT signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("token")
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		if tokenUserID == "" {
			tokenUserID = uuid.NewString()
		}
		if tokenUsername == "" {
			short := tokenUserID
			if len(short) > 8 {
				short = short[:8]
			}
			tokenUsername = "player-" + short
		}

		token, err := auth.New(auth.Config{JWTSecret: cfg.JWTSecret}).GenerateToken(tokenUserID, tokenUsername)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var hashAdminCmd = &cobra.Command{
	Use:   "hash-admin-token <token>",
	Short: "Print the bcrypt hash to use as ADMIN_TOKEN_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashAdminToken(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashAdminCmd)

	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (random when empty)")
	tokenCmd.Flags().StringVar(&tokenUsername, "name", "", "display name")
}
