package main

import (
	"flag"
	"log"

	"github.com/gin-gonic/gin"

	llmgate "github.com/ghiac/llmgate"
	"github.com/ghiac/llmgate/config"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "Path to the gateway's YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("=== LLM Gateway ===")
	log.Printf("Storage backend: %s", cfg.Storage.Kind)
	log.Printf("Providers configured: %d", len(cfg.Providers))
	log.Printf("Model mappings configured: %d", len(cfg.Mappings))

	gw, err := llmgate.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize gateway: %v", err)
	}
	defer gw.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	gw.RegisterRoutes(router)

	address := cfg.GetAddress()
	log.Printf("Listening on %s", address)
	log.Printf("  POST /v1/chat/completions - OpenAI-compatible chat completions (buffered or SSE)")
	log.Printf("  GET  /v1/models           - List configured model mappings")
	log.Printf("  GET  /health              - Health check")
	log.Printf("  GET  /admin/routing       - Provider/mapping topology graph")

	if err := router.Run(address); err != nil {
		log.Fatalf("HTTP server exited: %v", err)
	}
}
