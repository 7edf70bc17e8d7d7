package root

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tabchat/tabchat/pkg/fake"
	"github.com/tabchat/tabchat/pkg/preferences"
)

// newDemoCmd runs the client against a built-in scripted server, so the UI
// can be tried without a real agent backend.
func newDemoCmd(_ *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the client against a built-in scripted server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return fmt.Errorf("starting demo server: %w", err)
			}
			defer ln.Close()

			script := fake.DefaultScript()
			script.Delay = 40 * time.Millisecond
			srv := fake.New(
				fake.WithScript(script),
				fake.WithPingInterval(15*time.Second),
			)
			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				if err := http.Serve(ln, srv.Handler()); !errors.Is(err, net.ErrClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				defer ln.Close()
				serverURL := "http://" + ln.Addr().String()
				prefs := &preferences.Config{ServerURL: serverURL}
				return runAgainst(ctx, serverURL, prefs)
			})
			return eg.Wait()
		},
	}
}
