// Package main runs the local job backend emulator, a development stand-in
// for the remote batch service.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/batch-mast/orchestrator/internal/batch/emulator"
)

func main() {
	addr := flag.String("addr", ":8480", "Listen address")
	autoSucceed := flag.Int("auto-succeed", 0, "Auto-succeed jobs after N running polls (0 parks them at RUNNING)")
	flag.Parse()

	srv := emulator.New(emulator.Config{AutoSucceedAfter: *autoSucceed})

	server := &http.Server{
		Addr:         *addr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Batch emulator listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down emulator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Emulator stopped")
}
