// storewatch polls Swiggy and Zomato store pages every quarter hour with a
// headless Chromium, logs each store's availability into a Google Sheet and
// serves the recorded history over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	serveOnly := flag.Bool("serve-only", false, "serve the dashboard without scheduling cycles")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*serveOnly {
		if err := connectSheets(ctx); err != nil {
			logrusLogger.Fatalf("error connecting to the sheet: %v", err)
		}
	}

	if *once {
		if err := trackerService.RunOnceExclusive(ctx); err != nil {
			logrusLogger.Fatalf("cycle failed: %v", err)
		}
		return
	}

	if !*serveOnly {
		go trackerService.Loop(ctx)
	}

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: GetMainEngine(),
	}
	go func() {
		logrusLogger.Printf("dashboard listening on %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrusLogger.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logrusLogger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.Printf("server shutdown: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if db != nil {
		db.Close()
	}
}
