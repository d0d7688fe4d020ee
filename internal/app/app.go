// Package app wires the sync engine to its collaborators and runs one
// headless client session until the context ends or the session dies.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jellysync/jellysync/internal/client"
	"github.com/jellysync/jellysync/internal/player"
	"github.com/jellysync/jellysync/internal/protocol"
	"github.com/jellysync/jellysync/internal/serverdir"
	"github.com/jellysync/jellysync/internal/serverdir/sqlite"
	"github.com/jellysync/jellysync/pkg/ctxlogger"
)

type AppConfig struct {
	ServerURL        string `json:"server_url"`
	Room             string `json:"room"`
	JellyfinHost     string `json:"jellyfin_host"`
	DisplayName      string `json:"display_name"`
	DisplayNameColor string `json:"display_name_color"`
	DataDir          string `json:"data_dir"`
	LogLevel         string `json:"log_level"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server url must be provided")
	}
	if cfg.DisplayName == "" {
		return fmt.Errorf("display name must be provided")
	}
	if (cfg.Room == "") == (cfg.JellyfinHost == "") {
		return fmt.Errorf("exactly one of room (join) or jellyfin host (create) must be provided")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	directory, err := sqlite.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open server directory: %w", err)
	}
	defer directory.Close()

	ctx = ctxlogger.AppendCtx(ctx, slog.String("connect_id", uuid.NewString()))

	// creating a room vouches for the host locally; the real
	// authentication flow against the media server lives outside the
	// engine
	if cfg.JellyfinHost != "" {
		if err := directory.Add(ctx, serverdir.ServerCredentials{
			PublicAddress: cfg.JellyfinHost,
		}); err != nil {
			return fmt.Errorf("failed to register jellyfin host: %w", err)
		}
	}

	opts := client.Options{
		Directory: directory,
		Player:    player.Nop{},
		Notifier:  &logNotifier{logger: logger},
		Logger:    logger,
	}

	var c *client.Client
	if cfg.Room != "" {
		logger.InfoContext(ctx, "joining room", "room", cfg.Room, "server_url", cfg.ServerURL)
		c, err = client.Join(ctx, cfg.ServerURL, client.JoinParams{
			Room:             cfg.Room,
			DisplayName:      cfg.DisplayName,
			DisplayNameColor: cfg.DisplayNameColor,
		}, opts)
	} else {
		logger.InfoContext(ctx, "creating room", "jellyfin_host", cfg.JellyfinHost, "server_url", cfg.ServerURL)
		c, err = client.Create(ctx, cfg.ServerURL, client.CreateParams{
			DisplayName:      cfg.DisplayName,
			DisplayNameColor: cfg.DisplayNameColor,
			JellyfinHost:     cfg.JellyfinHost,
		}, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	// the session can already be gone if the server dropped the socket
	// right after the handshake; Done below fires immediately then
	if session := c.Session(); session != nil {
		logger.InfoContext(ctx, "connected", "room", session.Room, "you", session.You)
	}

	select {
	case <-ctx.Done():
		c.Disconnect()
	case <-c.Done():
	}

	return nil
}

// logNotifier prints room traffic; a real UI would render it.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) OnChat(entry client.ChatEntry) {
	n.logger.Info("chat", "from", entry.Sender, "message", entry.Message)
}

func (n *logNotifier) OnRosterChanged(members []protocol.Member) {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.DisplayName)
	}
	n.logger.Info("roster changed", "members", names)
}

func (n *logNotifier) OnLeaderChanged(newLeader int) {
	n.logger.Info("leader changed", "new_leader", newLeader)
}

func (n *logNotifier) OnServerState(state protocol.PlayingState, timestamp *float64, media string) {
	if timestamp != nil {
		n.logger.Info("server playback state", "state", state, "timestamp", *timestamp, "media", media)
		return
	}
	n.logger.Info("server playback state", "state", state, "media", media)
}

func (n *logNotifier) OnDisconnect(reason string) {
	n.logger.Info("disconnected", "reason", reason)
}
