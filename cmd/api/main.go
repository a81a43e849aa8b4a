package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/liuxinyu/starlight/backend/internal/config"
	"github.com/liuxinyu/starlight/backend/internal/handler"
	"github.com/liuxinyu/starlight/backend/internal/model/persona"
	agentService "github.com/liuxinyu/starlight/backend/internal/service/agent"
	"github.com/liuxinyu/starlight/backend/internal/service/ai"
	"github.com/liuxinyu/starlight/backend/internal/service/knowledge"
	"github.com/liuxinyu/starlight/backend/internal/service/memory"
	personalityService "github.com/liuxinyu/starlight/backend/internal/service/personality"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize chat model: %v", err)
	}

	embedder, err := cfg.AI.NewEmbedder(ctx)
	if err != nil {
		log.Fatalf("failed to initialize embedder: %v", err)
	}
	memoryStore := memory.NewStore(memory.NewEinoEmbedder(embedder))

	// 图谱不可达时降级启动，对话照常进行但没有长期知识。
	var graph *knowledge.Graph
	var updater *knowledge.Updater
	if g, err := knowledge.NewGraph(ctx, cfg.Graph); err != nil {
		log.Printf("warning: knowledge graph unavailable, continuing without it: %v", err)
	} else {
		graph = g
		updater, err = knowledge.NewUpdater(ctx, graph, chatModel)
		if err != nil {
			log.Fatalf("failed to initialize knowledge updater: %v", err)
		}
		log.Println("knowledge graph connected")
	}

	evolver, err := personalityService.NewEvolver(ctx, chatModel, cfg.Agent.EvolverLLM)
	if err != nil {
		log.Fatalf("failed to initialize personality evolver: %v", err)
	}

	generator, err := ai.NewService(ctx, chatModel, cfg.Agent.HistoryLimit, cfg.AI.StreamResponse)
	if err != nil {
		log.Fatalf("failed to initialize response generator: %v", err)
	}

	var graphFetcher agentService.ContextFetcher
	var knowledgeUpdater agentService.KnowledgeUpdater
	if graph != nil {
		graphFetcher = graph
		knowledgeUpdater = updater
	}
	agentSvc := agentService.NewService(cfg.Agent, personaStore, memoryStore, graphFetcher, knowledgeUpdater, evolver, generator)

	router := handler.NewRouter(personaStore, agentSvc, graph)

	startServer(ctx, cfg.Server, router)

	if graph != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := graph.Close(closeCtx); err != nil {
			log.Printf("warning: failed to close graph driver: %v", err)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Starlight backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
