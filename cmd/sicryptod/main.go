package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/glinharesb/sicrypto/internal/audit"
	"github.com/glinharesb/sicrypto/internal/config"
	"github.com/glinharesb/sicrypto/internal/crypto"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/interceptor"
	"github.com/glinharesb/sicrypto/internal/keystore"
	"github.com/glinharesb/sicrypto/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	auditLogger := audit.NewLogger(cfg.AuditBuffer, cfg.AuditRetention, os.Stdout)
	defer auditLogger.Close()

	var store keystore.Store
	if cfg.DataDir != "" {
		ps, err := keystore.NewPersistentStore(filepath.Join(cfg.DataDir, "keys.json"))
		if err != nil {
			slog.Error("persistent store", "error", err)
			os.Exit(1)
		}
		store = ps
		slog.Info("using persistent store", "path", cfg.DataDir)
	} else {
		store = keystore.NewMemoryStore()
		slog.Info("using in-memory store")
	}

	hsmOpts := []hsm.Option{hsm.WithSlots(cfg.EngineSlots)}
	if cfg.IsolatedSeed != "" {
		seed, err := hex.DecodeString(cfg.IsolatedSeed)
		if err != nil {
			slog.Error("isolated seed must be hex", "error", err)
			os.Exit(1)
		}
		hsmOpts = append(hsmOpts, hsm.WithIsolatedSeed(seed))
	} else {
		slog.Warn("no isolated seed configured, isolated keys will not survive a restart")
	}
	engine := crypto.New(hsm.NewSoftwareHSM(hsmOpts...), crypto.WithLogger(logger))

	defaultHash, ok := hsm.HashByName(cfg.DefaultHash)
	if !ok {
		slog.Error("unknown default hash", "hash", cfg.DefaultHash)
		os.Exit(1)
	}
	gen, err := engine.NewGenerator(cfg.DRBG, cfg.ReseedInterval)
	if err != nil {
		slog.Error("drbg", "error", err)
		os.Exit(1)
	}

	publicMethods := []string{healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName}
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptor.RecoveryUnary(logger),
			interceptor.LoggingUnary(logger),
			interceptor.RateLimitUnary(cfg.RateLimitRPS),
			interceptor.AuthUnary(cfg.AuthToken, publicMethods...),
		),
		grpc.ChainStreamInterceptor(
			interceptor.RecoveryStream(logger),
			interceptor.LoggingStream(logger),
			interceptor.RateLimitStream(cfg.RateLimitRPS),
			interceptor.AuthStream(cfg.AuthToken, publicMethods...),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			slog.Error("tls", "error", err)
			os.Exit(1)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	srv := grpc.NewServer(opts...)

	server.Register(srv,
		server.NewKeyManagementServer(store, engine, auditLogger, cfg.RSABits),
		server.NewSigningServer(store, engine, auditLogger),
		server.NewEncryptionServer(store, engine, auditLogger, defaultHash),
		server.NewAuditServer(auditLogger),
		server.NewRandomServer(gen),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("listen", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", cfg.GRPCAddr, "drbg", gen.Kind(), "tls", cfg.TLSCert != "")
		if err := srv.Serve(lis); err != nil {
			slog.Error("serve", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	healthSrv.Shutdown()

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown complete")
	case <-time.After(cfg.ShutdownTimeout.Duration):
		slog.Warn("graceful shutdown timed out, forcing stop")
		srv.Stop()
	}
}
