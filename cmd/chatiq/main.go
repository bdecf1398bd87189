package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/chatiq/chatiq/internal/adapters/consoleui"
	"github.com/chatiq/chatiq/internal/adapters/export"
	"github.com/chatiq/chatiq/internal/adapters/httpapi"
	"github.com/chatiq/chatiq/internal/adapters/llm"
	"github.com/chatiq/chatiq/internal/adapters/localstate"
	firestorestore "github.com/chatiq/chatiq/internal/adapters/storage/firestore"
	memstore "github.com/chatiq/chatiq/internal/adapters/storage/memory"
	"github.com/chatiq/chatiq/internal/app/engine"
	"github.com/chatiq/chatiq/internal/app/feedback"
	"github.com/chatiq/chatiq/internal/config"
	"github.com/chatiq/chatiq/internal/domain"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("error loading policy file: %v", err)
	}
	verifyPolicy := config.NewKeywordPolicy(policy.VerificationKeywords)
	vulgarityPolicy := config.NewKeywordPolicy(policy.VulgarityKeywords)

	// Completion: mock or Gemini by ENV (useful for dev)
	var completionClient domain.CompletionClient
	if cfg.UseMockLLM {
		log.Println("[LLM] Using mock completion client")
		completionClient = llm.NewMockCompletion()
	} else {
		log.Println("[LLM] Using Gemini completion client")
		completionClient, err = llm.NewGeminiClient(ctx, llm.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.ModelName,
			Persona: policy.Persona,
			Verify:  verifyPolicy,
		})
		if err != nil {
			log.Fatalf("error initializing Gemini client: %v", err)
		}
	}

	// Storage: Firestore or Memory
	var store engine.Store
	var feedbackStore domain.FeedbackStore

	switch cfg.StorageBackend {
	case "firestore":
		log.Printf("[STORE] Using Firestore storage (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		store = fsStore
		feedbackStore = fsStore

	default:
		log.Println("[STORE] Using in-memory storage")
		memStore := memstore.NewStore()
		store = memStore
		feedbackStore = memStore
	}

	local, err := localstate.NewStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("error initializing local state: %v", err)
	}

	ui := consoleui.NewRenderer(os.Stdout)
	eng := engine.New(store, completionClient, ui, local, vulgarityPolicy)
	feedbackSvc := feedback.NewService(feedbackStore, eng.Notes())

	// Recurring feedback export
	var sink domain.FeedbackSink
	if cfg.ExportEndpoint != "" {
		sink = export.NewHTTPSink(cfg.ExportEndpoint)
	} else {
		sink = export.NewLogSink()
	}
	exporter := feedback.NewExporter(feedbackStore, sink, cfg.ExportLookback)

	scheduler := cron.New()
	if _, err := exporter.Schedule(scheduler, cfg.ExportSchedule); err != nil {
		log.Fatalf("invalid export schedule %q: %v", cfg.ExportSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Authentication is an external collaborator; the engine serves the
	// configured user.
	if err := eng.SignIn(ctx, domain.UserID(cfg.UserID)); err != nil {
		log.Fatalf("error signing in: %v", err)
	}

	handler := httpapi.NewServer(eng, feedbackSvc)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Println("ChatIQ engine listening on", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
