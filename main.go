package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"Sochinenie/ai"
	"Sochinenie/assignment"
	"Sochinenie/bot"
	"Sochinenie/core"
	"Sochinenie/engine"
	"Sochinenie/gate"
	"Sochinenie/lib/sl"
	"Sochinenie/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("model", conf.Model),
		sl.Secret(conf.TelegramApiKey),
	).Info("starting sochinenie bot")

	// Initialize storage based on config
	var store storage.Storage
	if conf.Mongo.Enabled {
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		var err error
		store, err = storage.NewMongoStorage(mongoURI, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("user", conf.Mongo.User),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			store = seededMemoryStorage()
		} else {
			log.Info("using MongoDB storage")
		}
	} else {
		store = seededMemoryStorage()
		log.Info("using in-memory storage")
	}

	// The gate follows the same pattern: shared redis slot set when more
	// than one instance may run, in-process set otherwise.
	var requestGate gate.Gate
	if conf.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			log.With(
				slog.String("addr", conf.Redis.Address),
			).Error("falling back to memory gate", sl.Err(err))
			requestGate = gate.NewMemory()
		} else {
			requestGate = gate.NewRedis(client, log)
			log.Info("using redis gate")
		}
		cancel()
	} else {
		requestGate = gate.NewMemory()
	}

	assistant := ai.NewChat(conf, log)
	assignments := assignment.NewService(store, log)
	validator := assignment.NewValidator(conf.Submission.MinLength, conf.Submission.MaxLength, assistant)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}

	eng := engine.New(log, store, assignments, validator, requestGate, assistant, tgBot)
	tgBot.SetHandler(eng)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in goroutine
	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	// Graceful shutdown
	tgBot.Stop()

	if err := store.Close(); err != nil {
		log.Error("error closing storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

// seededMemoryStorage carries a small starter catalog so a local run
// without MongoDB has something to hand out.
func seededMemoryStorage() *storage.MemoryStorage {
	store := storage.NewMemoryStorage()
	store.SetTopics([]storage.Topic{
		{
			ID:     "mein-tag",
			Prompt: "Beschreibe deinen gestrigen Tag: was du gemacht hast, wen du getroffen hast und wie du dich gefühlt hast.",
			Title: map[core.Language]string{
				core.LangEN: "My day", core.LangRU: "Мой день", core.LangDE: "Mein Tag",
			},
			Description: map[core.Language]string{
				core.LangEN: "Describe your day yesterday: what you did, who you met, how you felt.",
				core.LangRU: "Опишите свой вчерашний день: что вы делали, кого встретили, как себя чувствовали.",
				core.LangDE: "Beschreibe deinen gestrigen Tag: was du gemacht hast, wen du getroffen hast und wie du dich gefühlt hast.",
			},
			Keywords: map[core.Language]string{
				core.LangEN: "aufstehen, frühstücken, arbeiten, sich treffen, müde",
				core.LangRU: "aufstehen, frühstücken, arbeiten, sich treffen, müde",
				core.LangDE: "aufstehen, frühstücken, arbeiten, sich treffen, müde",
			},
			Active: true,
		},
		{
			ID:     "lieblingsort",
			Prompt: "Beschreibe deinen Lieblingsort: wo er ist, wie er aussieht und warum du ihn magst.",
			Title: map[core.Language]string{
				core.LangEN: "My favourite place", core.LangRU: "Любимое место", core.LangDE: "Mein Lieblingsort",
			},
			Description: map[core.Language]string{
				core.LangEN: "Describe your favourite place: where it is, what it looks like, why you like it.",
				core.LangRU: "Опишите ваше любимое место: где оно, как выглядит, почему оно вам нравится.",
				core.LangDE: "Beschreibe deinen Lieblingsort: wo er ist, wie er aussieht und warum du ihn magst.",
			},
			Keywords: map[core.Language]string{
				core.LangEN: "der Ort, die Landschaft, ruhig, sich erholen, besuchen",
				core.LangRU: "der Ort, die Landschaft, ruhig, sich erholen, besuchen",
				core.LangDE: "der Ort, die Landschaft, ruhig, sich erholen, besuchen",
			},
			Active: true,
		},
		{
			ID:     "jahreszeit",
			Prompt: "Welche Jahreszeit magst du am liebsten und warum? Was machst du in dieser Jahreszeit gern?",
			Title: map[core.Language]string{
				core.LangEN: "My favourite season", core.LangRU: "Любимое время года", core.LangDE: "Meine Lieblingsjahreszeit",
			},
			Description: map[core.Language]string{
				core.LangEN: "Which season do you like best and why? What do you enjoy doing then?",
				core.LangRU: "Какое время года вы любите больше всего и почему? Чем вы любите заниматься в это время?",
				core.LangDE: "Welche Jahreszeit magst du am liebsten und warum? Was machst du in dieser Jahreszeit gern?",
			},
			Keywords: map[core.Language]string{
				core.LangEN: "der Frühling, der Sommer, das Wetter, draußen, genießen",
				core.LangRU: "der Frühling, der Sommer, das Wetter, draußen, genießen",
				core.LangDE: "der Frühling, der Sommer, das Wetter, draußen, genießen",
			},
			Active: true,
		},
	})
	return store
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
