// Command agentchaind serves one agent's source chain over gRPC.
//
// The chain index and block store live on the local filesystem. Committed
// entry and header blocks can additionally be mirrored to further CAS
// backends via a casconfig file, e.g. a second directory or a local IPFS
// repo. The chain index itself is never mirrored; it is the single writer's
// local authority.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/animanga/agentchain/chainrpc"
	"github.com/animanga/agentchain/dht"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/linkgraph"
	"github.com/animanga/agentchain/provenance"
	"github.com/animanga/agentchain/sourcechain"
	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/casconfig"
	"github.com/animanga/agentchain/storage/casregistry"
	"github.com/animanga/agentchain/storage/localfs"

	_ "github.com/animanga/agentchain/storage/ipfs"
	_ "github.com/animanga/agentchain/storage/memstore"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("agentchaind", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7677", "listen address")
	storeDir := fs.String("store-dir", "", "chain store directory (default ~/.agentchain/store)")
	mirrorConfig := fs.String("mirror-config", "", "casconfig JSON file; committed blocks are replicated to these backends")
	seedHex := fs.String("seed-hex", "", "ed25519 seed as 64 hex chars")
	signerName := fs.String("signer", "", "use a stored key by name (from 'agentchain key init')")
	signerRole := fs.String("signer-role", "", "when using --signer, use a derived role key")
	keyFile := fs.String("key-file", "", "path to a seed file created by 'agentchain key init/derive'")
	bootstrap := fs.Bool("bootstrap", false, "write the genesis header if the chain is empty")
	logJSON := fs.Bool("log-json", false, "log as JSON")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	listBackends := fs.Bool("list-backends", false, "List supported mirror backends and exit")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(args)
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log := newLogger(*logJSON, *logLevel)

	dir := *storeDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Error("home dir", "err", err)
			return 1
		}
		dir = home + "/.agentchain/store"
	}
	store, err := localfs.Open(dir)
	if err != nil {
		log.Error("open store", "dir", dir, "err", err)
		return 1
	}

	var blocks storage.CAS = store
	if *mirrorConfig != "" {
		cfg, err := casconfig.LoadFile(*mirrorConfig)
		if err != nil {
			log.Error("mirror config", "path", *mirrorConfig, "err", err)
			return 2
		}
		mirror, closeFn, err := cfg.Open(casregistry.UsageDaemon, "")
		if err != nil {
			log.Error("open mirrors", "err", err)
			return 2
		}
		if closeFn != nil {
			defer closeFn()
		}
		blocks = storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "local", CAS: store},
			{Name: "mirror", CAS: mirror},
		}}
	}

	ks, err := keys.CreateKeyStore("")
	if err != nil {
		log.Error("keystore", "err", err)
		return 1
	}
	seed, err := ks.LoadSeed(*seedHex, *signerName, *signerRole, *keyFile)
	if err != nil {
		log.Error("invalid signer", "err", err)
		return 2
	}
	signer, err := keys.NewEd25519Signer(seed)
	if err != nil {
		log.Error("signer", "err", err)
		return 2
	}

	c, err := sourcechain.New(signer.AgentKey(), blocks, store)
	if err != nil {
		log.Error("source chain", "err", err)
		return 1
	}
	ledger := provenance.NewLedger()
	pipeline, err := sourcechain.NewPipeline(c, signer, sourcechain.Config{
		Ledger:      ledger,
		Broadcaster: dht.Nop{},
		BroadcastErrors: func(b dht.Broadcast, err error) {
			log.Warn("broadcast failed", "header", b.HeaderHash.String(), "err", err)
		},
	})
	if err != nil {
		log.Error("pipeline", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := c.Len(); err != nil {
		log.Error("chain length", "err", err)
		return 1
	} else if n == 0 {
		if !*bootstrap {
			log.Error("chain is empty; run with --bootstrap to write the genesis header")
			return 2
		}
		genesis, err := pipeline.Bootstrap(ctx)
		if err != nil {
			log.Error("bootstrap", "err", err)
			return 1
		}
		log.Info("chain bootstrapped", "genesis", genesis.String())
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", "addr", *listen, "err", err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	chainrpc.RegisterSourceChainServer(s, &chainrpc.Server{
		Pipeline: pipeline,
		Links:    linkgraph.New(pipeline),
		Ledger:   ledger,
		Log:      log,
	})

	log.Info("agentchaind listening",
		"addr", lis.Addr().String(),
		"agent", signer.AgentKey(),
		"store", dir,
		"mirrored", *mirrorConfig != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		s.GracefulStop()
		return 0
	case err := <-errCh:
		if err != nil {
			log.Error("serve", "err", err)
			return 1
		}
		return 0
	}
}

func newLogger(json bool, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
