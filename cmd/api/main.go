package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lastcrate/surplus-orders/internal/config"
	"github.com/lastcrate/surplus-orders/internal/httpx"
	kafkax "github.com/lastcrate/surplus-orders/internal/kafka"
	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/postgres"
	"github.com/lastcrate/surplus-orders/internal/redisx"
	"github.com/lastcrate/surplus-orders/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("db schema: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Sessions
	sessions := session.NewStore()
	seedSessions(sessions, cfg.SeedTokens)

	// Store, cache & handlers
	store := market.NewPGStore(db)
	router := httpx.NewRouter()
	api := &httpx.API{
		Store:    store,
		Sessions: sessions,
		Producer: prod,
		Cache:    httpx.NewListingCache(rdb, store),
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	api.Register(router)

	// reservation reaper: abandoned reserved orders go back to stock
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := store.ExpireStaleReservations(ctx, cfg.ReservationTTL)
				if err != nil {
					log.Printf("reservation reaper: %v", err)
					continue
				}
				for _, o := range expired {
					log.Printf("expired stale reservation %s", o.ID)
				}
			}
		}
	}()

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}

// seedSessions loads fixed dev tokens: "token=actor:role,token=actor:role".
func seedSessions(store *session.Store, spec string) {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.SplitN(part, "=", 2)
		if len(eq) != 2 {
			log.Printf("skipping malformed seed token %q", part)
			continue
		}
		ar := strings.SplitN(eq[1], ":", 2)
		if len(ar) != 2 {
			log.Printf("skipping malformed seed token %q", part)
			continue
		}
		store.Put(session.Session{Token: eq[0], ActorID: ar[0], Role: session.Role(ar[1])})
	}
}
