package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/instasave/internal/config"
	"github.com/roelfdiedericks/instasave/internal/gateway"
	"github.com/roelfdiedericks/instasave/internal/instagram"
	. "github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/media"
	"github.com/roelfdiedericks/instasave/internal/paths"
	"github.com/roelfdiedericks/instasave/internal/telegram"
	"github.com/roelfdiedericks/instasave/internal/user"
)

var version = "0.1.0"

// CLI is the instasave command line.
type CLI struct {
	Config string `short:"c" help:"Path to instasave.toml (default ./instasave.toml or ~/.instasave/instasave.toml)" type:"path"`
	Debug  bool   `help:"Enable debug logging"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the Telegram bot"`
	Check   CheckCmd   `cmd:"" help:"Validate the bot token and the Instagram session"`
	Version VersionCmd `cmd:"" help:"Print the version"`
}

// runtime carries what every command needs.
type runtime struct {
	cfg *config.Config
}

func (c *CLI) load() (*runtime, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}

	level := ParseLevel(cfg.Log.Level)
	if c.Debug {
		level = LevelDebug
	}
	Init(&Config{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		ShowCaller: c.Debug,
	})
	SetLevel(level)

	return &runtime{cfg: cfg}, nil
}

func (r *runtime) endpoint() instagram.Endpoint {
	return instagram.Endpoint{
		BaseURL:   r.cfg.Instagram.BaseURL,
		AppID:     r.cfg.Instagram.AppID,
		UserAgent: r.cfg.Instagram.UserAgent,
	}
}

func (r *runtime) sessions() *instagram.SessionManager {
	ig := r.cfg.Instagram
	return instagram.NewSessionManager(r.cfg.Storage.DataDir, ig.Username, ig.Password, instagram.NewWebLogin(r.endpoint()))
}

// ServeCmd runs the bot until SIGINT/SIGTERM.
type ServeCmd struct{}

func (s *ServeCmd) Run(cli *CLI) error {
	rt, err := cli.load()
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	L_info("instasave starting", "version", version, "dataDir", cfg.Storage.DataDir)

	if err := paths.EnsureDir(cfg.Storage.DataDir); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	artifactDir := filepath.Join(cfg.Storage.DataDir, paths.ArtifactDir)
	fetcher, err := media.NewFetcher(&http.Client{}, artifactDir, cfg.MaxDownloadBytes(), cfg.Instagram.UserAgent)
	if err != nil {
		return err
	}
	janitor, err := media.NewJanitor(fetcher.Dir(), cfg.ArtifactTTL(), cfg.Storage.SweepSchedule)
	if err != nil {
		return err
	}

	admin := user.NewAdminGate(filepath.Join(cfg.Storage.DataDir, paths.AdminFile))
	defer admin.Close()
	users := user.NewRegistry(filepath.Join(cfg.Storage.DataDir, paths.UsersFile), loc)
	defer users.Close()

	bot, err := telegram.New(cfg.Telegram.BotToken, cfg.PollTimeout())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := gateway.New(ctx, gateway.Deps{
		Sessions:  rt.sessions(),
		Resolver:  instagram.NewResolver(rt.endpoint(), cfg.Instagram.PostDocID),
		Fetcher:   fetcher,
		Admin:     admin,
		Users:     users,
		Messenger: bot,
		Caption:   cfg.Telegram.Caption,
	})
	if err != nil {
		return err
	}
	bot.Attach(gw)

	janitor.Start()
	bot.Start()
	L_info("instasave ready", "bot", "@"+bot.Username())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	L_info("signal received", "signal", got.String())
	SetShuttingDown()

	bot.Stop()
	cancel()
	janitor.Stop()
	return nil
}

// CheckCmd validates credentials without starting the bot.
type CheckCmd struct {
	Relogin bool `help:"Discard the persisted Instagram session and log in again"`
}

func (c *CheckCmd) Run(cli *CLI) error {
	rt, err := cli.load()
	if err != nil {
		return err
	}
	if err := rt.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	username, err := telegram.TestToken(ctx, rt.cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	fmt.Printf("telegram: connected to @%s\n", username)

	sessions := rt.sessions()
	if c.Relogin {
		if err := sessions.Invalidate(); err != nil {
			return err
		}
	}
	start := time.Now()
	if _, err := sessions.Acquire(ctx); err != nil {
		return fmt.Errorf("instagram: %w", err)
	}
	L_elapsed(start, "instagram: session ready")
	fmt.Printf("instagram: session ready (%s)\n", sessions.Path())
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("instasave %s\n", version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("instasave"),
		kong.Description("Telegram bot that saves public Instagram posts."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		L_fatal("instasave: %v", err)
	}
}
