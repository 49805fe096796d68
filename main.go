package main

import (
	"net/http"
	"os"

	"casedesk/config/database"
	"casedesk/internal/chat"
	"casedesk/pkg/logger"
	"casedesk/router"
	"casedesk/socket"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Fine in production, where config comes from the environment.
		os.Stderr.WriteString("No .env file found, using environment variables from OS\n")
	}

	logger.Init()
	defer logger.Log.Sync()

	db := database.Connect()
	defer db.Close()

	chatRepo := chat.NewRepository(db)

	// The hub manages all WebSocket clients and conversation rooms. Its
	// event loop runs in its own goroutine so it never blocks request
	// handling.
	hub := socket.NewHub(chatRepo)
	go hub.Run()

	handler := router.Setup(db, hub, chatRepo)

	logger.Sugar.Info("Go backend listening on :8080")
	if err := http.ListenAndServe(":8080", handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
