package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/unihub/unihub/auth"
	"github.com/unihub/unihub/pkg/clierr"
)

// tokenCmd reports on the stored access token and can force a refresh.
func tokenCmd() *cobra.Command {
	var show, refresh bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the state of the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				if _, err := a.client.Refresh(cmd.Context()); err != nil {
					return clierr.New(clierr.Auth, "token refresh failed; run 'unihub login'", err)
				}
				cmd.Println("Access token refreshed.")
			}

			token := a.tokens.Token(cmd.Context())
			if token == "" {
				cmd.Println("Not logged in.")
				return nil
			}
			if show {
				cmd.Println("Token:", token)
			}

			info, err := auth.Inspect(token)
			if err != nil {
				cmd.Println("Logged in (opaque token).")
				return nil
			}
			printTokenInfo(cmd, info, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&show, "show", "s", false, "Print the raw access token")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Refresh the access token first")

	return cmd
}

func printTokenInfo(cmd *cobra.Command, info *auth.TokenInfo, now time.Time) {
	status := "valid"
	if info.Expired(now) {
		status = "expired (it will be refreshed on the next request)"
	}
	cmd.Println("Status:", status)
	if info.Subject != "" {
		cmd.Println("Subject:", info.Subject)
	}
	if len(info.Roles) > 0 {
		cmd.Println("Roles:", strings.Join(info.Roles, ", "))
	}
	if !info.ExpiresAt.IsZero() {
		cmd.Println("Expires:", info.ExpiresAt.Local().Format(time.RFC1123))
	}
}
