package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/1ureka/framewire/internal/app"
	"github.com/1ureka/framewire/internal/config"
	"github.com/1ureka/framewire/internal/transport"
	"github.com/1ureka/framewire/internal/util"
)

// runFlags holds the flags shared by serve and dial.
type runFlags struct {
	transport   string
	addr        string
	configPath  string
	metricsAddr string
	debug       bool
	name        string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.transport, "transport", "t", "", "Transport: tcp, ws, quic or webrtc")
	fs.StringVarP(&f.addr, "addr", "a", "", "Listen address (serve) or server address (dial)")
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to a TOML config file")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
}

func serveCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept peers and relay chat messages between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, cmd.Flags())
		},
	}
	flags.register(cmd.Flags())

	return cmd
}

func dialCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a server and chat from stdin",
		Long: `Connect to a framewire server, greet it and send every stdin line as a
chat message. A leading "!" marks a message urgent; /ping, /blob <n>
and /quit are commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd.Context(), flags, cmd.Flags())
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "Display name sent in the greeting")

	return cmd
}

func runServe(ctx context.Context, flags runFlags, fs *pflag.FlagSet) error {
	cfg, err := loadConfig(config.RoleServer, flags, fs)
	if err != nil {
		return err
	}
	if err := app.RunServer(ctx, cfg); err != nil {
		return err
	}
	util.LogInfo("server stopped")
	return nil
}

func runDial(ctx context.Context, flags runFlags, fs *pflag.FlagSet) error {
	cfg, err := loadConfig(config.RoleClient, flags, fs)
	if err != nil {
		return err
	}
	if err := app.RunClient(ctx, cfg, os.Stdin); err != nil {
		return err
	}
	util.LogInfo("connection closed")
	return nil
}

// loadConfig layers defaults, the config file, the environment and finally
// the flags. With a nil fs every non-empty flag value counts as set.
func loadConfig(role config.Role, flags runFlags, fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(flags.configPath, role)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}

	set := func(name, value string) bool {
		if fs != nil {
			return fs.Changed(name)
		}
		return value != ""
	}
	if set("transport", flags.transport) {
		kind, err := transport.ParseKind(flags.transport)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Transport = kind
	}
	if set("addr", flags.addr) {
		cfg.Address = flags.addr
	}
	if set("metrics-addr", flags.metricsAddr) {
		cfg.MetricsAddress = flags.metricsAddr
	}
	if set("name", flags.name) {
		cfg.Name = flags.name
	}
	if flags.debug {
		cfg.Debug = true
	}

	if cfg.Debug {
		util.EnableDebug()
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
