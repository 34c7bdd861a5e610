// Command netmap-import reads an OSPF link-state database dump (JSON) on stdin and
// replaces the stored links and neighbours with it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netmap/internal/config"
	"netmap/internal/db"
	"netmap/internal/enrichment/rdns"
	"netmap/internal/enrichment/snmp"
	"netmap/internal/httpapi"
	"netmap/internal/importer"
	"netmap/internal/ospf"
)

func main() {
	cfg, err := config.Load(os.Getenv("NETMAP_CONFIG"), os.Getenv)
	if err != nil {
		bootLogger := httpapi.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := httpapi.NewLoggerFromConfig(cfg.Log, "netmap-import")

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dump, err := ospf.Parse(os.Stdin)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read link-state database")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := pool.Migrate(ctx, cfg.DefaultMap); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var sources []importer.NameSource
	if cfg.Import.SNMPEnabled {
		sources = append(sources, snmp.NewClient(snmp.Config{
			Community: cfg.Import.SNMPCommunity,
			Version:   cfg.Import.SNMPVersion,
			Timeout:   cfg.Import.SNMPTimeout,
		}))
	}
	if resolver, err := rdns.New(cfg.Import.DNSServer, 2*time.Second); err != nil {
		logger.Warn().Err(err).Msg("reverse dns disabled")
	} else {
		sources = append(sources, resolver)
	}

	im := importer.New(logger, importer.PoolStore{Pool: pool}, importer.Options{
		Map:     cfg.DefaultMap,
		Workers: cfg.Import.Workers,
		Sources: sources,
	}, nil)
	if _, err := im.Run(ctx, dump); err != nil {
		pool.Close()
		logger.Fatal().Err(err).Msg("import failed")
	}
}
