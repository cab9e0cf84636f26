// Command airdropd serves claims for the rounds listed in config.json.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkle-airdrop/airdrop/config"
	"github.com/merkle-airdrop/airdrop/internal/airdrop"
	"github.com/merkle-airdrop/airdrop/internal/logging"
	"github.com/merkle-airdrop/airdrop/internal/permit"
	"github.com/merkle-airdrop/airdrop/internal/protocol"
	"github.com/merkle-airdrop/airdrop/internal/registry"
	"github.com/merkle-airdrop/airdrop/internal/server"
	"github.com/merkle-airdrop/airdrop/internal/store"
	"github.com/merkle-airdrop/airdrop/internal/vesting"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config.json")
	port := flag.Int("port", 0, "HTTP port (0 = use config.json)")
	storageDir := flag.String("storage-dir", "", "Ledger storage directory (overrides config.json)")
	flag.Parse()

	// Load config first (primary source of truth)
	cfg, err := config.Load(*configPath)
	usingDefaults := false
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "airdropd: %v\n", err)
			os.Exit(2)
		}
		cfg = config.Default()
		usingDefaults = true
	}

	// Allow environment variable overrides
	if envPort := os.Getenv("PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			cfg.ListenPort = p
		}
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if envDir := os.Getenv("STORAGE_DIR"); envDir != "" {
		cfg.Storage.Dir = envDir
	}
	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}
	if envURL := os.Getenv("REGISTRY_URL"); envURL != "" {
		cfg.Registry.URL = envURL
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "airdropd: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	if usingDefaults {
		logger.Info("no config file found, using defaults", "path", *configPath)
	}

	service, closeFn, err := setup(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}
	defer closeFn()

	if err := service.Start(cfg.ListenPort); err != nil {
		logger.Error("server stopped", "err", err)
	}
}

// setup opens the store, the registry and every configured round.
func setup(cfg *config.Config, logger *logging.Logger) (*server.Service, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	s, err := store.Open(cfg.Storage.Engine, cfg.Storage.Dir, logger)
	if err != nil {
		return nil, nil, err
	}

	// Ensure the store is closed if a later step fails
	success := false
	defer func() {
		if !success {
			s.Close()
		}
	}()

	var (
		reg   registry.Registry
		local *registry.Memory
	)
	if cfg.Registry.URL != "" {
		reg = registry.NewClient(cfg.Registry.URL, cfg.Network)
		logger.Info("using remote registry", "url", cfg.Registry.URL)
		if cfg.Network.DelayEnabled {
			logger.Info("network delay simulation enabled", "min_ms", cfg.Network.MinDelayMs, "max_ms", cfg.Network.MaxDelayMs)
		}
	} else {
		local, err = seedRegistry(cfg.Registry.Entries)
		if err != nil {
			return nil, nil, err
		}
		reg = local
	}

	dist := airdrop.NewDistributor(s, reg,
		permit.Domain{Name: cfg.Permit.Domain.Name, Version: cfg.Permit.Domain.Version},
		permit.Phrases{Authorization: cfg.Permit.AuthMsg, DestinationAuthorization: cfg.Permit.RecipientMsg},
		logger)

	for _, rc := range cfg.Rounds {
		round, err := loadRound(rc, cfg.Vesting)
		if err != nil {
			return nil, nil, err
		}
		if err := dist.OpenRound(round); err != nil {
			return nil, nil, err
		}
	}

	success = true
	return server.NewService(dist, local, logger), s.Close, nil
}

func seedRegistry(entries []config.RegistryEntry) (*registry.Memory, error) {
	reg := registry.NewMemory(nil)
	for _, e := range entries {
		var exp time.Time
		if e.Expiration != 0 {
			exp = time.Unix(e.Expiration, 0)
		}
		if err := reg.AddAirdrop(e.Airdrop, exp); err != nil {
			return nil, err
		}
		addrs := make([]common.Address, 0, len(e.Allowed))
		for _, a := range e.Allowed {
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("registry entry %s: invalid address %q", e.Airdrop, a)
			}
			addrs = append(addrs, common.HexToAddress(a))
		}
		if err := reg.Allow(e.Airdrop, addrs...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func loadRound(rc config.RoundConfig, defaultVesting config.VestingConfig) (airdrop.Round, error) {
	data, err := os.ReadFile(rc.Artifact)
	if err != nil {
		return airdrop.Round{}, fmt.Errorf("round %s: read artifact: %w", rc.ID, err)
	}
	var artifact protocol.DistributionArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return airdrop.Round{}, fmt.Errorf("round %s: decode artifact: %w", rc.ID, err)
	}

	schedule := vesting.Schedule{Percentages: defaultVesting.Percentages, TimeDeltas: defaultVesting.TimeDeltas}
	switch {
	case rc.Immediate:
		schedule = vesting.Immediate()
	case rc.Vesting != nil:
		schedule = vesting.Schedule{Percentages: rc.Vesting.Percentages, TimeDeltas: rc.Vesting.TimeDeltas}
	}

	return airdrop.RoundFromArtifact(rc.ID, &artifact, time.Unix(rc.ActivatedAt, 0), schedule)
}
