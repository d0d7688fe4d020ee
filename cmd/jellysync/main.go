package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jellysync/jellysync/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	serverURL = configVar[string]{
		envKey:       "JELLYSYNC_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "",
	}
	room = configVar[string]{
		envKey:       "JELLYSYNC_ROOM",
		flagKey:      "room",
		defaultValue: "",
	}
	jellyfinHost = configVar[string]{
		envKey:       "JELLYSYNC_JELLYFIN_HOST",
		flagKey:      "jellyfin-host",
		defaultValue: "",
	}
	displayName = configVar[string]{
		envKey:       "JELLYSYNC_DISPLAY_NAME",
		flagKey:      "display-name",
		defaultValue: "",
	}
	displayNameColor = configVar[string]{
		envKey:       "JELLYSYNC_DISPLAY_NAME_COLOR",
		flagKey:      "display-name-color",
		defaultValue: "#ffffff",
	}
	dataDir = configVar[string]{
		envKey:       "JELLYSYNC_DATA_DIR",
		flagKey:      "data-dir",
		defaultValue: ".jellysync",
	}
	logLevel = configVar[string]{
		envKey:       "JELLYSYNC_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, "Sync server websocket URL")
	pflag.String(room.flagKey, room.defaultValue, "Room id to join")
	pflag.String(jellyfinHost.flagKey, jellyfinHost.defaultValue, "Jellyfin host to create a room for")
	pflag.String(displayName.flagKey, displayName.defaultValue, "Display name")
	pflag.String(displayNameColor.flagKey, displayNameColor.defaultValue, "Display name color")
	pflag.String(dataDir.flagKey, dataDir.defaultValue, "Local data directory")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(serverURL.flagKey, serverURL.envKey)
	viper.BindEnv(room.flagKey, room.envKey)
	viper.BindEnv(jellyfinHost.flagKey, jellyfinHost.envKey)
	viper.BindEnv(displayName.flagKey, displayName.envKey)
	viper.BindEnv(displayNameColor.flagKey, displayNameColor.envKey)
	viper.BindEnv(dataDir.flagKey, dataDir.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)

	viper.SetDefault(serverURL.flagKey, serverURL.defaultValue)
	viper.SetDefault(room.flagKey, room.defaultValue)
	viper.SetDefault(jellyfinHost.flagKey, jellyfinHost.defaultValue)
	viper.SetDefault(displayName.flagKey, displayName.defaultValue)
	viper.SetDefault(displayNameColor.flagKey, displayNameColor.defaultValue)
	viper.SetDefault(dataDir.flagKey, dataDir.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)

	config := &app.AppConfig{
		ServerURL:        viper.GetString(serverURL.flagKey),
		Room:             viper.GetString(room.flagKey),
		JellyfinHost:     viper.GetString(jellyfinHost.flagKey),
		DisplayName:      viper.GetString(displayName.flagKey),
		DisplayNameColor: viper.GetString(displayNameColor.flagKey),
		DataDir:          viper.GetString(dataDir.flagKey),
		LogLevel:         viper.GetString(logLevel.flagKey),
	}

	return config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting jellysync with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
