package cli

import (
	"fmt"
	"time"

	"quiz-arena/internal/auth"
	"quiz-arena/internal/config"
	"quiz-arena/internal/domain"

	"github.com/spf13/cobra"
)

// NewTokenCmd issues a player token signed with the configured secret. Identity issuance
// belongs to an external provider in production; this is for local play and testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		playerID string
		name     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed player token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			tokens, err := auth.NewJWTManager(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			if err != nil {
				return err
			}
			token, err := tokens.Generate(domain.Identity{PlayerID: playerID, Name: name}, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}
