package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/unihub/unihub/bridge"
	"github.com/unihub/unihub/pkg/clierr"
	"github.com/unihub/unihub/pkg/validation"
)

// bridgeCmd looks for the host bridge, waits for it to report ready and
// prints what it found.
func bridgeCmd() *cobra.Command {
	var openLink string
	var closeApp bool

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Probe the host app bridge and wait until it is ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ready := make(chan struct{})
			start := time.Now()
			a.bridge.OnReady(func() { close(ready) })

			// The cache always calls back, after at most attempts * interval.
			limit := time.Duration(a.cfg.Bridge.PollAttempts)*a.cfg.Bridge.PollInterval + 30*time.Second
			select {
			case <-ready:
			case <-time.After(limit):
				return clierr.New(clierr.Internal, "host bridge did not report ready", nil)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			cmd.Printf("Ready after %s\n", time.Since(start).Round(time.Millisecond))
			cmd.Println("State:", a.bridge.State())

			h := a.bridge.Get()
			if h == nil {
				if openLink != "" || closeApp {
					return clierr.New(clierr.Validation, "no host bridge to send the action to", nil)
				}
				cmd.Println("No host bridge; running as a plain web client.")
				return nil
			}
			if caps := bridge.Capabilities(h); len(caps) > 0 {
				cmd.Println("Capabilities:", strings.Join(caps, ", "))
			}
			if err := runBridgeActions(cmd, h, openLink, closeApp); err != nil {
				return err
			}

			data, err := bridge.ParseInitData(h.InitData())
			if err != nil {
				cmd.Println("Init data: unreadable:", err)
				return nil
			}
			if data.User != nil {
				cmd.Printf("User: %s (id %d)\n", data.User.DisplayName(), data.User.ID)
			}
			if !data.AuthDate.IsZero() {
				cmd.Println("Signed at:", data.AuthDate.Format(time.RFC3339))
			}
			if data.StartParam != "" {
				cmd.Println("Start parameter:", data.StartParam)
			}
			return nil
		},
	}

	cmd.Flags().String("init-data", "", "Init data to use instead of probing a page")
	cmd.Flags().String("bridge-url", "", "Mini-app page to open in a browser and probe")
	cmd.Flags().StringVar(&openLink, "open-link", "", "Ask the host to open this URL")
	cmd.Flags().BoolVar(&closeApp, "close", false, "Ask the host to close the mini-app when done")
	cmd.Flags().Int("poll-attempts", bridge.DefaultPollAttempts, "How many times to look for the bridge before giving up")

	return cmd
}

// runBridgeActions sends the requested actions to the host. Closing goes last.
func runBridgeActions(cmd *cobra.Command, h bridge.Handle, openLink string, closeApp bool) error {
	if openLink != "" {
		if err := validation.ValidateAPIPath(openLink); err != nil || !strings.Contains(openLink, "://") {
			return clierr.New(clierr.Validation, fmt.Sprintf("invalid link %q: must be an absolute http(s) URL", openLink), err)
		}
		if err := bridge.OpenLink(h, openLink); err != nil {
			return bridgeActionError(err)
		}
		cmd.Println("Opened link:", openLink)
	}
	if closeApp {
		if err := bridge.CloseApp(h); err != nil {
			return bridgeActionError(err)
		}
		cmd.Println("Mini-app closed.")
	}
	return nil
}

func bridgeActionError(err error) error {
	if errors.Is(err, bridge.ErrUnsupported) {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	return clierr.New(clierr.Internal, err.Error(), err)
}
