package root

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tabchat/tabchat/pkg/api"
	"github.com/tabchat/tabchat/pkg/preferences"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions stored on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefs, err := preferences.Load()
			if err != nil {
				return fmt.Errorf("loading preferences: %w", err)
			}

			serverURL := prefs.ServerURL
			if flags.serverURL != "" {
				serverURL = flags.serverURL
			}

			client, err := api.NewClient(serverURL)
			if err != nil {
				return err
			}

			sessions, err := client.GetSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPROFILE\tMESSAGES\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.Title, s.Profile, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
