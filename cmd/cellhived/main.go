package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arlenko/cellhive/pkg/admin"
	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/hiverpc"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

// parsePeers parses a comma-separated "tag:host:port" list into a
// StaticResolver. The peer CellId is re-derived from its tag with
// NewCellId, the same way this process's own cell id is minted:
// without a real membership protocol exchanging canonical ids, every
// process in a demo cluster must agree on id-from-tag derivation.
func parsePeers(raw string) (hiverpc.StaticResolver, error) {
	resolver := make(hiverpc.StaticResolver)
	if raw == "" {
		return resolver, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid peer %q: want tag:host:port", entry)
		}
		tag, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid peer tag %q: %w", parts[0], err)
		}
		cellID := hiveid.NewCellId(hiveid.CellTag(tag))
		resolver[cellID] = parts[1]
	}
	return resolver, nil
}

func main() {
	cellTag := flag.Uint("cell-tag", 1, "This cell's tag, used to derive its CellId")
	rpcHost := flag.String("rpc-host", "0.0.0.0", "Participant/coordinator gRPC listen host")
	rpcPort := flag.Int("rpc-port", 9443, "Participant/coordinator gRPC listen port")
	adminHost := flag.String("admin-host", "0.0.0.0", "Admin HTTP listen host")
	adminPort := flag.Int("admin-port", 9444, "Admin HTTP listen port")
	peers := flag.String("peers", "", "Comma-separated tag:host:port list of participant cells")
	enableGraphQL := flag.Bool("graphql", true, "Enable the admin /graphql and /graphiql endpoints")
	flag.Parse()

	selfCellID := hiveid.NewCellId(hiveid.CellTag(*cellTag))

	resolver, err := parsePeers(*peers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cellhived: %v\n", err)
		os.Exit(1)
	}
	channelProvider := hiverpc.NewChannelProvider(resolver)

	consensus := cellconsensus.NewFake()
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()

	cfg := txsupervisor.DefaultConfig(selfCellID)
	keeper := responsekeeper.NewKeeper(4096, 10*time.Minute)

	sup := txsupervisor.NewSupervisor(cfg, consensus, localTx, ts, channelProvider, keeper)
	lifecycle := txsupervisor.NewLifecycle(sup)
	lifecycle.Register()
	// A single-process demo cell has no external leader election: it
	// becomes active immediately.
	lifecycle.OnLeaderActive()

	handler := txsupervisor.NewParticipantHandler(cfg, localTx, ts, nil)

	rpcCfg := hiverpc.DefaultConfig()
	rpcCfg.Host = *rpcHost
	rpcCfg.Port = *rpcPort
	rpcServer := hiverpc.NewServer(rpcCfg, sup, handler)
	if err := rpcServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "cellhived: rpc server: %v\n", err)
		os.Exit(1)
	}

	adminCfg := admin.DefaultConfig()
	adminCfg.Host = *adminHost
	adminCfg.Port = *adminPort
	adminCfg.EnableGraphQL = *enableGraphQL
	adminServer, err := admin.New(adminCfg, sup, lifecycle.Decommission())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cellhived: admin server: %v\n", err)
		os.Exit(1)
	}
	adminErrs := adminServer.Start()

	fmt.Printf("cellhived: cell %s listening rpc=%s:%d admin=%s:%d\n",
		selfCellID, *rpcHost, *rpcPort, *adminHost, *adminPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-adminErrs:
		if err != nil {
			fmt.Fprintf(os.Stderr, "cellhived: admin server: %v\n", err)
		}
	case sig := <-sigChan:
		fmt.Printf("cellhived: received signal %v, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lifecycle.Shutdown(ctx)
	rpcServer.Stop()
	if err := adminServer.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cellhived: admin shutdown: %v\n", err)
	}
}
