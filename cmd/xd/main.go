package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	serverAddr string
	transport  string
	authToken  string
	sessionID  string
	jsonOutput bool
	noColor    bool

	api     *client.HTTPClient
	scanner client.ScanClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("CROSSDOCK_HTTP_URL"); s != "" {
		return s
	}
	if p := activeProfile(); p.URL != "" {
		return p.URL
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("CROSSDOCK_SERVER"); s != "" {
		return s
	}
	if p := activeProfile(); p.GRPCAddr != "" {
		return p.GRPCAddr
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("CROSSDOCK_TOKEN"); s != "" {
		return s
	}
	return activeProfile().Token
}

var rootCmd = &cobra.Command{
	Use:           "xd <command>",
	Short:         "Dispatch and receive crossdock manifests",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		api = client.NewHTTPClient(httpURL, authToken)
		switch transport {
		case "http":
			scanner = api
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			scanner = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if scanner != nil {
			scanner.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport for scanning calls (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "API bearer token")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", activeProfile().SessionID, "operator session id")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "operator", Title: "Operator:"},
		&cobra.Group{ID: "scan", Title: "Scanning:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Operator
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)

	// Scanning
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(receiveCmd)

	// Views
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(volumesCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
		os.Exit(1)
	}
}
