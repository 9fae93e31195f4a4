package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hllvc/toconline-mcp/internal/app"
	"github.com/hllvc/toconline-mcp/internal/credstore"
	"github.com/hllvc/toconline-mcp/internal/observability"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with TOC Online (one-time interactive login)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "check whether credentials are stored",
			},
			&cli.BoolFlag{
				Name:  "logout",
				Usage: "remove stored credentials",
			},
		},
		Action: authAction,
	}
}

func authAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	err = observability.Instrument(cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Exporter)
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	switch {
	case cmd.Bool("status"):
		return authStatus(ctx, cfg, application.Store())
	case cmd.Bool("logout"):
		return authLogout(ctx, application.Store())
	default:
		return authLogin(ctx, cfg, application)
	}
}

func authStatus(ctx context.Context, cfg *app.Config, store credstore.Store) error {
	if cfg.Auth.AccessToken != "" {
		fmt.Println("✓ A static access token is configured (auth.access_token). OAuth is bypassed.")
		return nil
	}

	_, err := store.Load(ctx)
	switch {
	case err == nil:
		fmt.Printf("✓ A refresh token is stored in the %s backend.\n", cfg.Auth.Storage)
	case errors.Is(err, credstore.ErrNotFound):
		if cfg.Auth.RefreshToken != "" {
			fmt.Println("⚠ No stored credential, but a refresh token is provided via configuration.")
			fmt.Println("  Consider running 'toconline-mcp auth' to store it securely.")
		} else {
			fmt.Println("✗ Not authenticated. Run 'toconline-mcp auth' to log in.")
		}
	case errors.Is(err, credstore.ErrUnavailable):
		fmt.Printf("⚠ The %s storage backend is unavailable: %v\n", cfg.Auth.Storage, err)
	default:
		return err
	}
	return nil
}

func authLogout(ctx context.Context, store credstore.Store) error {
	if err := store.Delete(ctx); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			fmt.Println("✗ No stored credential to remove.")
			return nil
		}
		fmt.Printf("⚠ Could not remove the stored credential: %v\n", err)
		return err
	}
	fmt.Println("✓ Stored credential removed.")
	return nil
}

func authLogin(ctx context.Context, cfg *app.Config, application *app.App) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("interactive login requires a terminal")
	}

	login, err := application.Engine().BeginLogin()
	if err != nil {
		return fmt.Errorf("starting login: %w", err)
	}

	fmt.Println("Open this URL in your browser and authorize access:")
	fmt.Println()
	fmt.Printf("  %s\n", login.AuthURL())
	fmt.Println()
	fmt.Print("Paste the full callback URL (or just the authorization code): ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if err := login.SubmitRedirect(strings.TrimSpace(line)); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	sess, err := login.Exchange(ctx, application.Store())
	if err != nil {
		if sess.RefreshToken == "" {
			return fmt.Errorf("token exchange failed: %w", err)
		}
		// Exchange succeeded but the credential could not be persisted.
		fmt.Printf("⚠ Could not store the refresh token: %v\n", err)
		fmt.Println("  Set it via the environment instead:")
		fmt.Printf("  TOCONLINE_AUTH__REFRESH_TOKEN=%s\n", sess.RefreshToken)
		return nil
	}

	fmt.Printf("✓ Refresh token stored in the %s backend.\n", cfg.Auth.Storage)
	fmt.Printf("✓ Access token received (expires in %s).\n", time.Until(sess.Expiry).Round(time.Second))
	fmt.Println("You're all set. The server renews tokens automatically from here on.")
	return nil
}
