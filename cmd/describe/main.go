// Command describe captions one image with the configured providers and saves the spoken caption as MP3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/internal/app"
	"github.com/satriahrh/lensa/internal/config"
	"github.com/satriahrh/lensa/internal/pipeline"
)

func main() {
	imagePath := flag.String("image", "", "path to a .png, .jpg or .jpeg image")
	outPath := flag.String("out", "caption.mp3", "where to write the spoken caption")
	configPath := flag.String("config", config.Path(), "YAML config file")
	play := flag.Bool("play", false, "play the MP3 after writing it")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	// Create logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		logger.Fatal("Failed to read image", zap.String("image", *imagePath), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	providers, err := app.NewProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize providers", zap.Error(err))
	}
	services := app.NewServices(cfg, providers, logger)

	session := entities.NewSession(cfg.Session.TTL)
	if err := services.Sessions.Create(ctx, session); err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}

	description, err := services.Descriptions.Describe(ctx, session.ID, filepath.Base(*imagePath), data, func(event pipeline.Event) {
		if event.Type == pipeline.EventStageStarted {
			fmt.Printf("[%d/%d] %s...\n", event.Index+1, event.Total, event.Stage)
		}
	})
	if err != nil {
		logger.Fatal("Failed to describe image", zap.Error(err))
	}

	if err := os.WriteFile(*outPath, description.Audio.Bytes(), 0o644); err != nil {
		logger.Fatal("Failed to write audio", zap.String("out", *outPath), zap.Error(err))
	}

	fmt.Printf("Generated Description: %s\n", description.Caption.Text)
	fmt.Printf("Audio saved to %s (%s)\n", *outPath, humanize.Bytes(uint64(len(description.Audio.Bytes()))))

	if *play {
		if err := playAudioFile(*outPath, logger); err != nil {
			logger.Warn("Failed to play audio automatically", zap.Error(err))
		}
	}
}

// audioPlayer represents an audio player command and its arguments
type audioPlayer struct {
	command string
	args    []string
}

// mp3Players are tried in order
var mp3Players = []audioPlayer{
	{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{"mpg123", []string{"-q"}},
	{"afplay", nil},
	{"play", []string{"-q"}},
}

// playAudioFile plays the MP3 with the first player found on PATH
func playAudioFile(filename string, logger *zap.Logger) error {
	for _, player := range mp3Players {
		if _, err := exec.LookPath(player.command); err != nil {
			continue
		}

		args := append(append([]string{}, player.args...), filename)
		logger.Info("Attempting to play audio", zap.String("player", player.command), zap.Strings("args", args))
		err := exec.Command(player.command, args...).Run()
		if err == nil {
			return nil
		}
		logger.Debug("Player failed", zap.String("player", player.command), zap.Error(err))
	}
	return fmt.Errorf("no suitable audio player found")
}
