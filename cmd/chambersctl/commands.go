package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/chambers-pm/chambers/internal/accessclient"
	"github.com/chambers-pm/chambers/internal/matters"
)

// Exit codes. exitDenied separates "the answer is no" from failures.
const (
	exitOK     = 0
	exitError  = 1
	exitUsage  = 2
	exitDenied = 10
)

const usage = `usage: chambersctl [flags] <command> [args]

commands:
  whoami            print the signed-in identity and role
  can <permission>  exit 0 when the role holds permission, 10 otherwise
  route <path>      evaluate the route guard for path
  sidebar           list the sidebar entries the role may see
  matters           list matters (requires mm:read)

The password is read from CHAMBERS_PASSWORD.
`

type options struct {
	Server   string
	Email    string
	Password string
	JSON     bool
	Stdout   io.Writer
	Stderr   io.Writer
}

type command func(ctx context.Context, c *accessclient.Client, snap accessclient.Snapshot, args []string, opts options) int

var commands = map[string]command{
	"whoami":  whoamiCommand,
	"can":     canCommand,
	"route":   routeCommand,
	"sidebar": sidebarCommand,
	"matters": mattersCommand,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	opts := options{Stdout: stdout, Stderr: stderr, Password: getenv("CHAMBERS_PASSWORD")}
	flagSet := pflag.NewFlagSet("chambersctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.Server, "server", envOr(getenv, "CHAMBERS_URL", "http://localhost:8080"), "Chambers base URL")
	flagSet.StringVarP(&opts.Email, "email", "e", getenv("CHAMBERS_EMAIL"), "account email")
	flagSet.BoolVar(&opts.JSON, "json", false, "print JSON output")
	flagSet.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage, "\nflags:\n", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return exitUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "chambersctl: unknown command %q\n", rest[0])
		return exitUsage
	}
	if opts.Email == "" || opts.Password == "" {
		_, _ = fmt.Fprintln(stderr, "chambersctl: --email and CHAMBERS_PASSWORD are required")
		return exitUsage
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := accessclient.New(opts.Server, accessclient.WithLogger(logger))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "chambersctl: %v\n", err)
		return exitError
	}
	snap, err := client.Login(ctx, opts.Email, opts.Password)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "chambersctl: login: %v\n", err)
		return exitError
	}
	defer func() {
		if err := client.Logout(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("logout", slog.Any("error", err))
		}
	}()
	if snap.Degraded {
		_, _ = fmt.Fprintln(stderr, "chambersctl: access policy unavailable, showing minimal access")
	}
	return cmd(ctx, client, snap, rest[1:], opts)
}

func whoamiCommand(_ context.Context, _ *accessclient.Client, snap accessclient.Snapshot, _ []string, opts options) int {
	if opts.JSON {
		return writeJSON(opts, map[string]any{
			"identity": snap.Principal.Identity,
			"role":     snap.Principal.Role,
			"degraded": snap.Degraded,
		})
	}
	id := snap.Principal.Identity
	_, _ = fmt.Fprintf(opts.Stdout, "%s <%s>\nrole: %s\npermissions: %s\n",
		id.Name, id.Email, snap.Principal.Role.Name, strings.Join(snap.Policy.Permissions, ", "))
	return exitOK
}

func canCommand(_ context.Context, _ *accessclient.Client, snap accessclient.Snapshot, args []string, opts options) int {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(opts.Stderr, "usage: chambersctl can <permission>")
		return exitUsage
	}
	allowed := snap.HasPermission(args[0])
	if opts.JSON {
		writeJSON(opts, map[string]any{"permission": args[0], "allowed": allowed})
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: %s\n", args[0], verdict(allowed))
	}
	if !allowed {
		return exitDenied
	}
	return exitOK
}

func routeCommand(ctx context.Context, c *accessclient.Client, _ accessclient.Snapshot, args []string, opts options) int {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(opts.Stderr, "usage: chambersctl route <path>")
		return exitUsage
	}
	guard := accessclient.NewRouteGuard(c.Cache())
	d := guard.Resolve(ctx, args[0], c)
	if opts.JSON {
		writeJSON(opts, map[string]any{"path": d.Path, "state": d.State.String(), "redirect": d.Redirect, "notice": d.Notice})
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: %s\n", d.Path, d.State)
		if d.State == accessclient.StateRedirecting {
			_, _ = fmt.Fprintf(opts.Stdout, "redirect: %s\n%s\n", d.Redirect, d.Notice)
		}
	}
	if d.State != accessclient.StateAuthorized {
		return exitDenied
	}
	return exitOK
}

func sidebarCommand(_ context.Context, _ *accessclient.Client, snap accessclient.Snapshot, _ []string, opts options) int {
	if opts.JSON {
		return writeJSON(opts, map[string]any{"items": snap.Policy.AccessibleSidebarItems, "routes": snap.Policy.AccessibleRoutes})
	}
	for _, item := range snap.Policy.AccessibleSidebarItems {
		_, _ = fmt.Fprintln(opts.Stdout, item)
	}
	return exitOK
}

func mattersCommand(ctx context.Context, c *accessclient.Client, _ accessclient.Snapshot, _ []string, opts options) int {
	var resp struct {
		Matters []matters.Matter `json:"matters"`
	}
	if err := c.Get(ctx, "/api/matters", &resp); err != nil {
		if errors.Is(err, accessclient.ErrForbidden) {
			_, _ = fmt.Fprintln(opts.Stderr, "chambersctl: your role may not list matters")
			return exitDenied
		}
		_, _ = fmt.Fprintf(opts.Stderr, "chambersctl: list matters: %v\n", err)
		return exitError
	}
	if opts.JSON {
		return writeJSON(opts, resp)
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REFERENCE\tTITLE\tCLIENT\tSTATUS")
	for _, m := range resp.Matters {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Reference, m.Title, m.ClientName, m.Status)
	}
	_ = tw.Flush()
	return exitOK
}

func writeJSON(opts options, v any) int {
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "chambersctl: encode json: %v\n", err)
		return exitError
	}
	return exitOK
}

func verdict(ok bool) string {
	if ok {
		return "allowed"
	}
	return "denied"
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
