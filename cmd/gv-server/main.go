package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"gitvault/pkg/app"
	"gitvault/pkg/config"
	"gitvault/pkg/server"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	fs := pflag.NewFlagSet("gv-server", pflag.ExitOnError)
	cfgFile := fs.String("config", "", "config file (default is <repo>/.gv/config.yaml)")
	fs.String("addr", ":8080", "listen address")
	fs.StringP("repo", "C", ".", "repository root")
	_ = fs.Parse(os.Args[1:])

	loader := config.NewLoader()
	for key, name := range map[string]string{"server.addr": "addr", "repo.path": "repo"} {
		if err := loader.BindFlag(key, fs.Lookup(name)); err != nil {
			log.Fatalf("bind flag: %v", err)
		}
	}
	cfg, err := loader.Load(*cfgFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize app: %v", err)
	}
	defer a.Close()
	a.Log.Info("gitvault core initialized",
		zap.String("repo", cfg.Repo.Path),
		zap.Stringer("algo", a.Objects.Algo()),
		zap.String("refs", cfg.Refs.Backend),
		zap.Int("objects", a.Objects.Count()),
	)

	// 3. Setup Network
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		a.Log.Fatal("failed to listen", zap.String("addr", cfg.Server.Addr), zap.Error(err))
	}

	// 4. Serve until signal
	if err := server.Serve(ctx, server.New(a), lis, a.Log); err != nil {
		a.Log.Error("server stopped", zap.Error(err))
	}
	a.Log.Info("server stopped")
}
