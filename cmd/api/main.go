package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"crash/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		// Drains the round engine first so the in-flight round settles
		// and placed stakes are refunded before the process exits.
		if err := srv.Shutdown(); err != nil {
			log.Printf("[SERVER] Shutdown error: %v", err)
		}
		if err := srv.App.Shutdown(); err != nil {
			log.Printf("[SERVER] HTTP shutdown error: %v", err)
		}
		close(done)
	}()

	if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("[SERVER] Listen failed: %v", err)
	}

	<-done
	log.Println("[SERVER] Graceful shutdown complete")
}
