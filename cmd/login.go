package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/unihub/unihub/auth"
	"github.com/unihub/unihub/pkg/clierr"
	"golang.org/x/term"
)

// loginCmd signs in with a username and password, or with the host app's
// init data when the CLI runs next to a chat host.
func loginCmd() *cobra.Command {
	var username string
	var fromBridge bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to UniHub",
		Long:  "Login to UniHub using your university username and password, or the host app's signed init data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			creds := auth.Credentials{InitData: a.cfg.Bridge.InitData}
			if fromBridge {
				h := a.bridge.Get()
				if h == nil || h.InitData() == "" {
					return clierr.New(clierr.Validation, "no host bridge found; run inside the host app or set bridge.init_data", nil)
				}
				creds.InitData = h.InitData()
			}
			if creds.InitData == "" {
				p := newPrompter(cmd)
				if username == "" {
					cmd.Println("Please enter your UniHub username and password.")
					username = p.promptForInput("Username: ")
				}
				creds.Username = username
				creds.Password = p.promptForPassword("Password: ")
				if !validateCredentials(creds.Username, creds.Password) {
					return clierr.New(clierr.Validation, "username and password cannot be empty", nil)
				}
			}

			if err := a.tokens.Login(cmd.Context(), a.client, creds); err != nil {
				return clierr.New(clierr.Auth, "login failed", err)
			}
			cmd.Println("Login was successful.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to log in with")
	cmd.Flags().String("init-data", "", "Signed init data handed over by the host app")
	cmd.Flags().BoolVar(&fromBridge, "from-bridge", false, "Take the init data from the host bridge")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tokens.Logout(cmd.Context(), a.client); err != nil {
				cmd.PrintErrln("Warning: the server could not be told about the logout:", err)
			}
			a.jar.Forget(cmd.Context())
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// prompter reads answers from the command's input. Both prompts share one
// buffered reader so piped input is not lost between them.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), reader: bufio.NewReader(cmd.InOrStdin())}
}

// promptForInput prompts the user for input and returns the trimmed string.
func (p *prompter) promptForInput(prompt string) string {
	fmt.Fprint(p.out, prompt)
	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		return ""
	}
	return strings.TrimSpace(input)
}

// promptForPassword reads a password without echo when the input is a terminal.
func (p *prompter) promptForPassword(prompt string) string {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.promptForInput(prompt)
	}
	fmt.Fprint(p.out, prompt)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out) // Print a newline for better formatting
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(password))
}

// validateCredentials checks if the username and password are not empty.
func validateCredentials(username, password string) bool {
	return username != "" && password != ""
}
