package main

import (
	"fmt"
	"net/http"

	"github.com/mcdev12/basta/go/internal/config"
	"github.com/mcdev12/basta/go/internal/gateway"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: cfg.CORSOrigins,
		AllowedHeaders: []string{"*"},
	})

	router := gateway.NewRouter(
		gateway.NewHandler(services.Orchestrator, services.Games).WithStartCountdown(cfg.Game.StartCountdownSec),
		gateway.NewWebSocketHandler(services.Connections, services.Orchestrator),
	)

	// Wrap with CORS
	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
