// Framewire CLI entry point.
//
// framewire runs the demo chat protocol over a framed packet stream. One
// side serves, any number of others dial in; the transport can be plain TCP,
// WebSocket, QUIC or a WebRTC DataChannel. Started without a subcommand it
// asks for the role interactively.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/framewire/internal/config"
	"github.com/1ureka/framewire/internal/transport"
	"github.com/1ureka/framewire/internal/util"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.ConfigureFromEnv()

	rootCmd := &cobra.Command{
		Use:   "framewire",
		Short: "Framed packet streams over TCP, WebSocket, QUIC or WebRTC",
		Long: `framewire carries id-tagged packets over any byte stream.

Run "framewire serve" on one machine and "framewire dial" on others to
chat through the demo protocol. Without a subcommand the role is asked
interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// runInteractive asks for the role, transport and address, then runs with
// otherwise default settings.
func runInteractive(ctx context.Context) error {
	pterm.Info.Println(fmt.Sprintf("framewire v%s", version))
	pterm.Println()

	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Serve - Accept peers", "Dial  - Connect to a server"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	kinds := make([]string, len(transport.Kinds))
	for i, k := range transport.Kinds {
		kinds[i] = string(k)
	}
	kind, _ := pterm.DefaultInteractiveSelect.
		WithOptions(kinds).
		WithDefaultText("Select the transport").
		Show()
	pterm.Println()

	flags := runFlags{transport: kind}
	if strings.HasPrefix(role, "Serve") {
		flags.addr = askText("Listen address", config.Default(config.RoleServer).Address)
		return runServe(ctx, flags, nil)
	}
	flags.addr = askText("Server address", config.Default(config.RoleClient).Address)
	flags.name = askText("Your name", "")
	return runDial(ctx, flags, nil)
}

// askText prompts for one line, returning def when the answer is empty.
func askText(prompt, def string) string {
	if def != "" {
		prompt = fmt.Sprintf("%s (%s)", prompt, def)
	}
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()

	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return def
}
