package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/devsfort/whatsapp-relay/internal/api"
	"github.com/devsfort/whatsapp-relay/internal/broadcast"
	"github.com/devsfort/whatsapp-relay/internal/config"
	"github.com/devsfort/whatsapp-relay/internal/notify"
	"github.com/devsfort/whatsapp-relay/internal/relay"
	"github.com/devsfort/whatsapp-relay/internal/repo"
	"github.com/devsfort/whatsapp-relay/internal/retention"
	"github.com/devsfort/whatsapp-relay/internal/whatsapp"
	"github.com/devsfort/whatsapp-relay/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("postgres unreachable: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}

	messages := repo.NewPostgresMessageRepo(db)
	users := repo.NewPostgresUserDirectory(db)
	notifier := notify.NewPostgresNotifier(db)
	broadcaster := broadcast.NewRedisBroadcaster(rdb)
	client := whatsapp.NewClient(cfg.WhatsApp)

	svc := relay.New(
		cfg.WhatsApp,
		cfg.Broadcast.ChannelPrefix,
		client,
		messages,
		users,
		broadcaster,
		notifier,
	)

	hub := ws.NewHub(rdb, cfg.Broadcast.ChannelPrefix)
	go hub.Run(context.Background())

	if days := cfg.WhatsApp.RetentionDays; days > 0 {
		pruner, err := retention.New(
			time.Duration(days)*24*time.Hour,
			time.Hour,
			messages,
		)
		if err != nil {
			log.Fatal(err)
		}
		pruner.Start()
		defer pruner.Stop()
	}

	handler := api.NewHandler(svc, users)
	router := api.Router(handler, hub)

	slog.Info("whatsapp relay starting",
		"addr", cfg.Server.Address,
		"mock_mode", cfg.WhatsApp.UseMockMode,
		"channel_prefix", cfg.Broadcast.ChannelPrefix,
		"retention_days", cfg.WhatsApp.RetentionDays,
	)

	if err := http.ListenAndServe(cfg.Server.Address, router); err != nil {
		log.Fatal(err)
	}
}
