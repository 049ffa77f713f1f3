package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/httpapi"
	"accessdesk.org/internal/ledger"
	"accessdesk.org/internal/obs"
	"accessdesk.org/internal/registry"
	"accessdesk.org/internal/sso"
	"accessdesk.org/internal/store/pg"
	"accessdesk.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("ACCESSDESK_PG_DSN")
	if dsn == "" {
		log.Fatal("ACCESSDESK_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	dir, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	requests, err := ledger.NewService(store, dir)
	if err != nil {
		log.Fatalf("ledger service: %v", err)
	}
	users, err := registry.NewService(store, dir)
	if err != nil {
		log.Fatalf("registry service: %v", err)
	}
	resolver, err := sso.NewResolver(users, requests, dir)
	if err != nil {
		log.Fatalf("sso resolver: %v", err)
	}

	provider, err := sso.NewRemoteProvider(
		os.Getenv("ACCESSDESK_SSO_AUTH_URL"),
		os.Getenv("ACCESSDESK_SSO_EXCHANGE_URL"),
	)
	if err != nil {
		log.Fatalf("sso provider: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(probe, version, provider, resolver, requests, users, stream.New())

	addr := os.Getenv("ACCESSDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting accessdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	grpcSrv := startGRPC(probe)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("Stopped")
}

// startGRPC serves the gRPC health endpoint when ACCESSDESK_GRPC_ADDR is set.
func startGRPC(probe httpapi.ReadyProbe) *grpc.Server {
	addr := os.Getenv("ACCESSDESK_GRPC_ADDR")
	if addr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	srv := grpc.NewServer()
	httpapi.NewHealthServer(probe).Register(srv)
	log.Printf("Serving gRPC health on %s", addr)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()
	return srv
}
