package main

import (
	"log"

	"flight-arcade/internal/audio"
	"flight-arcade/internal/config"
	"flight-arcade/internal/desktop"
	"flight-arcade/internal/game"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	player, err := audio.NewPlayer(audio.Config{
		Enabled:     appConfig.Audio.Enabled,
		Volume:      appConfig.Audio.Volume,
		MusicPath:   appConfig.Audio.MusicPath,
		MusicVolume: appConfig.Audio.MusicVolume,
	})
	if err != nil {
		log.Printf("⚠️ Audio disabled: %v", err)
	}
	defer player.Close()

	events := game.NewEventLog()
	if appConfig.EventLogPath != "" {
		if err := events.Start(appConfig.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", appConfig.EventLogPath)
		}
	}
	defer events.Stop()

	window := desktop.New(desktop.Config{
		Width:    int(appConfig.Field.Width),
		Height:   int(appConfig.Field.Height),
		TPS:      appConfig.Server.FPS,
		Tuning:   appConfig.Tuning.Game(),
		Limits:   appConfig.GameLimits(),
		Labels:   appConfig.Tuning.Labels,
		FontPath: appConfig.FontPath,
		Seed:     appConfig.Seed,
		Events:   events,
		Audio:    player,
	})

	log.Println("🛩️ Flight Arcade - move the pointer to fly, Esc to quit")
	if err := window.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Goodbye!")
}
