// Command web-demo runs a self-contained tabletop: an in-memory store, the
// fixture catalog and a lobby that is ready to start, served with a small
// browser client.
package main

import (
	"context"
	_ "embed"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"github.com/magefree/tabletop-server-go/internal/game"
	"github.com/magefree/tabletop-server-go/internal/repository"
	"github.com/magefree/tabletop-server-go/internal/server"
	"github.com/magefree/tabletop-server-go/internal/ws"
	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML []byte

var (
	addr        = flag.String("addr", ":8081", "listen address")
	fixturePath = flag.String("fixture", "config/decks.json", "deck fixture")
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	fixture, err := catalog.LoadStaticFile(*fixturePath)
	if err != nil {
		logger.Fatal("failed to load fixture", zap.Error(err))
	}

	coord := coordinator.New(repository.NewMemoryStore(), fixture, coordinator.Options{}, logger.Named("coordinator"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lobby, err := seedLobby(ctx, coord)
	if err != nil {
		logger.Fatal("failed to seed demo lobby", zap.Error(err))
	}
	logger.Info("demo lobby ready",
		zap.String("session_id", lobby.ID),
		zap.Int64("version", lobby.Version),
	)

	hub := ws.NewHub(coord, config.WebSocketConfig{}, logger.Named("ws"))
	api := server.NewAPI(coord, fixture, hub, logger.Named("http"))

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexHTML)
	})

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("demo server listening", zap.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("demo server failed", zap.Error(err))
	}
}

// seedLobby creates a two-player lobby with decks chosen and everyone
// ready, so the browser only has to send StartGame.
func seedLobby(ctx context.Context, coord *coordinator.Coordinator) (game.Session, error) {
	lobby, err := coord.CreateLobby(ctx, "Demo table", "alice")
	if err != nil {
		return game.Session{}, err
	}
	steps := []coordinator.Command{
		coordinator.JoinLobby("bob"),
		coordinator.ChooseDeck("alice", "spider-man-starter"),
		coordinator.ChooseDeck("bob", "captain-marvel-starter"),
		coordinator.SetEncounterDeck("alice", "rhino"),
		coordinator.ToggleReady("alice"),
		coordinator.ToggleReady("bob"),
	}
	for _, cmd := range steps {
		res, err := coord.Execute(ctx, lobby.ID, cmd)
		if err != nil {
			return game.Session{}, err
		}
		lobby = res.Session
	}
	return lobby, nil
}
