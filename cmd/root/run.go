package root

import (
	"context"
	"fmt"
	"net/url"

	tea "charm.land/bubbletea/v2"

	"github.com/tabchat/tabchat/pkg/api"
	"github.com/tabchat/tabchat/pkg/connection"
	"github.com/tabchat/tabchat/pkg/preferences"
	"github.com/tabchat/tabchat/pkg/reconcile"
	"github.com/tabchat/tabchat/pkg/tabs"
	"github.com/tabchat/tabchat/pkg/tui"
)

// runTUI assembles the client and blocks until the program exits.
func runTUI(ctx context.Context, flags *rootFlags) error {
	prefs, err := preferences.Load()
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	serverURL := prefs.ServerURL
	if flags.serverURL != "" {
		serverURL = flags.serverURL
	}

	return runAgainst(ctx, serverURL, prefs)
}

// runAgainst starts the TUI against the given server.
func runAgainst(ctx context.Context, serverURL string, prefs *preferences.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := api.NewClient(serverURL)
	if err != nil {
		return err
	}

	streamURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	store := tabs.NewStore(ctx)
	conn := connection.New(streamURL, store.HandleEvent, store.HandleStatus)
	engine := reconcile.New(client, store.HandleEvent, nil)
	store.Wire(conn, engine)
	defer store.Close()

	store.CreateTab(prefs.DefaultProfile, prefs.DefaultProject)

	model, unsubscribe := tui.New(store)
	defer unsubscribe()

	p := tea.NewProgram(
		model,
		tea.WithContext(ctx),
	)

	_, err = p.Run()
	return err
}

// websocketURL derives the stream endpoint from the server's base URL.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	return u.String(), nil
}
