package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"voice-assistant/config"
	"voice-assistant/internal/application"
	"voice-assistant/internal/infra/anthropic"
	"voice-assistant/internal/infra/assemblyai"
	"voice-assistant/internal/infra/audio"
	"voice-assistant/internal/infra/gemini"
	"voice-assistant/internal/infra/metrics"
	"voice-assistant/internal/infra/openai"
	"voice-assistant/internal/infra/proxy"
	"voice-assistant/internal/infra/pushover"
	"voice-assistant/internal/infra/tts"
	"voice-assistant/internal/infra/web"
)

func main() {
	configPath := cli.StringP("config", "c", "config.yaml", "path to config file")
	envFile := cli.StringP("env", "e", ".env", "env file with API keys")
	logLevel := cli.StringP("log-level", "l", "", "override log.level from the config")
	cli.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("loading env file", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	httpClient, err := createHTTPClient(cfg.Proxy)
	if err != nil {
		logger.Error("creating proxy client", "proxy", cfg.Proxy.SocksAddr, "error", err)
		os.Exit(1)
	}

	transcriber := assemblyai.NewClientWithURL(cfg.Transcription.APIKey, cfg.Transcription.Language, cfg.Transcription.BaseURL)
	if httpClient != nil {
		transcriber.WithHTTPClient(httpClient)
	}

	var appMetrics application.Metrics = application.NoopMetrics{}
	var promMetrics *metrics.Metrics
	if cfg.Metrics.On() {
		promMetrics = metrics.NewMetrics(cfg.Metrics.Namespace)
		appMetrics = promMetrics
	}

	hub := web.NewHub(logger)
	view := web.NewView(hub, logger)

	speech, closeSpeech := createSpeech(cfg.Speech, hub, httpClient, logger)
	defer closeSpeech()

	notifier := createNotifier(cfg.Pushover, httpClient)

	recorder := application.NewRecorder(createMicrophone(cfg.Microphone, hub, logger), logger).
		WithMetrics(appMetrics)
	poller := application.NewPoller(transcriber, application.PollerConfig{
		Interval: cfg.Transcription.Interval(),
		MaxPolls: cfg.Transcription.MaxPolls,
	}, appMetrics, logger)

	assistant := application.NewAssistant(
		recorder,
		application.NewUploader(transcriber, appMetrics, logger),
		poller,
		application.NewConversation(createChat(cfg.Chat, httpClient), speech, appMetrics, logger),
		view,
		notifier,
		logger,
	)

	server := web.NewServer(web.ServerConfig{
		Addr:      cfg.HTTP.Addr,
		AuthToken: cfg.HTTP.AuthToken,
		RateLimit: cfg.HTTP.RateLimit,
	}, hub, view, logger)
	if promMetrics != nil {
		server.WithMetrics(promMetrics.Handler())
	}
	server.Bind(assistant)

	if err := server.Start(ctx); err != nil {
		logger.Error("starting web view", "error", err)
		os.Exit(1)
	}
	defer server.Stop()

	logger.Info("starting voice assistant",
		"microphone", cfg.Microphone.Device,
		"speech", cfg.Speech.Engine,
		"chat", cfg.Chat.Provider,
	)

	if err := assistant.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

func createHTTPClient(cfg config.ProxyConfig) (*http.Client, error) {
	if cfg.SocksAddr == "" {
		return nil, nil
	}
	return proxy.NewSocksClient(cfg.SocksAddr, cfg.User, cfg.Password, 120*time.Second)
}

func createNotifier(cfg config.PushoverConfig, httpClient *http.Client) application.Notifier {
	if !cfg.Enabled {
		return &application.NoopNotifier{}
	}
	client := pushover.NewClient(cfg.Token, cfg.UserKey, cfg.Title)
	if httpClient != nil {
		client.WithHTTPClient(httpClient)
	}
	return client
}

func createMicrophone(cfg config.MicrophoneConfig, hub *web.Hub, logger *slog.Logger) application.Microphone {
	switch cfg.Device {
	case "portaudio":
		format := application.DefaultAudioFormat()
		format.SampleRate = cfg.SampleRate
		return audio.NewMicrophone(format, logger)
	case "file":
		return audio.NewFileMicrophone(cfg.File, logger)
	default:
		return web.NewBrowserMicrophone(hub, cfg.Timeout())
	}
}

func createChat(cfg config.ChatConfig, httpClient *http.Client) application.ChatCompleter {
	switch cfg.Provider {
	case "anthropic":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com/v1"
		}
		client := anthropic.NewClaudeClientWithURL(cfg.APIKey, cfg.Model, cfg.SystemPrompt, baseURL)
		if httpClient != nil {
			client.WithHTTPClient(httpClient)
		}
		return client
	case "gemini":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = gemini.DefaultBaseURL
		}
		client := gemini.NewClientWithURL(cfg.APIKey, cfg.Model, cfg.SystemPrompt, baseURL)
		if httpClient != nil {
			client.WithHTTPClient(httpClient)
		}
		return client
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.DefaultBaseURL
		}
		return openai.NewChatClientWithURL(cfg.APIKey, cfg.Model, cfg.SystemPrompt, baseURL, httpClient)
	}
}

func createSpeech(cfg config.SpeechConfig, hub *web.Hub, httpClient *http.Client, logger *slog.Logger) (application.SpeechSynthesizer, func()) {
	switch cfg.Engine {
	case "espeak":
		speaker := tts.NewSpeaker(tts.NewEspeak(cfg.Espeak.Binary, cfg.Espeak.Voice, cfg.Espeak.Speed), logger)
		return speaker, speaker.Close
	case "elevenlabs":
		client := tts.NewElevenLabsClient(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID, cfg.ElevenLabs.Model)
		if httpClient != nil {
			client.WithHTTPClient(httpClient)
		}
		speaker := tts.NewSpeaker(tts.NewElevenLabs(client, tts.NewPlayer()), logger)
		return speaker, speaker.Close
	case "none":
		return &application.NoopSpeech{}, func() {}
	default:
		return web.NewBrowserSpeech(hub), func() {}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "tint":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
