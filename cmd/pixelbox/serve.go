package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/pixelbox/internal/config"
	"github.com/vovakirdan/pixelbox/internal/platform/tui"
	"github.com/vovakirdan/pixelbox/internal/platform/web"
	"github.com/vovakirdan/pixelbox/internal/runtime"
)

var (
	flagHTTPAddr    string
	flagSSHAddr     string
	flagHostKey     string
	flagIdleTimeout int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web and SSH players",
	Long: `Start the browser player and the SSH player.

The web player serves a page at / with a canvas, an editor and the sample
list; every browser watches the same game. Each SSH connection gets its own
session with a game picker menu, and "ssh host -p 23234 snake" plays a
sample directly. Pass an empty address to disable a player.

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.pixelbox/host_key

Examples:
  pixelbox serve                          # Web on :8080, SSH on :23234
  pixelbox serve --http :9000 --ssh ""    # Web only
  pixelbox serve --host-key ./my_host_key # Use specific host key`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHTTPAddr, "http", "", "Web player address (default from config, :8080)")
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", "", "SSH server address (default from config, :23234)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 0, "Idle timeout in minutes before disconnecting (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.cfg.Server
	flags := cmd.Flags()
	if flags.Changed("http") {
		srv.HTTPAddr = flagHTTPAddr
	}
	if flags.Changed("ssh") {
		srv.SSHAddr = flagSSHAddr
	}
	if flags.Changed("host-key") {
		srv.HostKeyPath = flagHostKey
	}
	if flags.Changed("idle-timeout") {
		srv.IdleTimeout = minutes(flagIdleTimeout)
	}
	if srv.HTTPAddr == "" && srv.SSHAddr == "" {
		return errors.New("nothing to serve: both --http and --ssh are empty")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := a.openStore()
	g, ctx := errgroup.WithContext(ctx)

	if srv.HTTPAddr != "" {
		webServer, err := web.NewServer(web.Config{
			Address:    srv.HTTPAddr,
			Controller: a.newController("web", runtime.Options{}),
			Loader:     a.loader(),
			Samples:    a.samples,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Web player on http://localhost%s\n", webServer.Addr())
		g.Go(func() error {
			return webServer.ListenAndServe(ctx)
		})
	}

	if srv.SSHAddr != "" {
		hostKey := ""
		if srv.HostKeyPath != "" {
			if hostKey, err = expand(srv.HostKeyPath); err != nil {
				return err
			}
		}
		sshServer, err := tui.NewSSHServer(tui.SSHServerConfig{
			Address:     srv.SSHAddr,
			HostKeyPath: hostKey,
			IdleTimeout: srv.IdleTimeout,
			NewController: func(source string) *runtime.Controller {
				return a.newController(source, runtime.Options{})
			},
			Loader:  a.loader(),
			Samples: a.samples,
			Store:   store,
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		fmt.Printf("SSH player on %s (ssh localhost -p %s)\n", sshServer.Addr(), port(sshServer.Addr()))
		g.Go(func() error {
			return sshServer.ListenAndServe(ctx)
		})
	}

	fmt.Println("Press Ctrl+C to stop")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func expand(path string) (string, error) {
	return config.ExpandPath(path)
}

// port returns the port of a host:port address for the connect hint.
func port(addr string) string {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		return p
	}
	return addr
}
