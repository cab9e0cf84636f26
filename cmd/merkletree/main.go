// Command merkletree builds the Merkle root and per-recipient proofs for an
// entitlement file and writes the distribution artifact.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/merkle-airdrop/airdrop/config"
	"github.com/merkle-airdrop/airdrop/internal/logging"
	"github.com/merkle-airdrop/airdrop/internal/merkle"
	"github.com/merkle-airdrop/airdrop/internal/protocol"
)

const (
	defaultInput  = "./cmd/merkletree/testdata/input-example.json"
	defaultOutput = "./storage/output.json"
)

func main() {
	inputPath := flag.String("input", "", "Entitlement file (env INPUT_PATH)")
	outputPath := flag.String("output", "", "Artifact output file (env OUTPUT_PATH)")
	env := flag.String("log-env", "development", "Logger environment: development or production")
	flag.Parse()

	logger, err := logging.New(config.LoggerConfig{Environment: *env})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if *inputPath == "" {
		*inputPath = os.Getenv("INPUT_PATH")
	}
	if *inputPath == "" {
		*inputPath = defaultInput
		logger.Info("no INPUT_PATH set, using example input", "path", *inputPath)
	}
	if *outputPath == "" {
		*outputPath = os.Getenv("OUTPUT_PATH")
	}
	if *outputPath == "" {
		*outputPath = defaultOutput
	}

	artifact, err := run(*inputPath, *outputPath, logger)
	if err != nil {
		logger.Fatal("build failed", "err", err)
	}
	logger.Info("merkle tree written",
		"root", artifact.MerkleRoot.Hex(), "total_claim_supply", artifact.TotalClaimSupply,
		"claims", len(artifact.Claims), "output", *outputPath)
}

// run validates the entitlements at inputPath, builds the tree, writes the
// artifact to outputPath and reads it back to check every proof.
func run(inputPath, outputPath string, logger *logging.Logger) (*protocol.DistributionArtifact, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	set, err := merkle.ReadEntitlementFile(f)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.Build(set)
	if err != nil {
		return nil, err
	}
	artifact, err := tree.Artifact()
	if err != nil {
		return nil, err
	}
	for _, c := range artifact.Claims {
		logger.Debug("proof", "address", c.Address.Hex(), "amount", c.Amount, "proof", c.Proof)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	written, err := readArtifact(outputPath)
	if err != nil {
		return nil, err
	}
	if err := merkle.VerifyArtifact(written); err != nil {
		return nil, fmt.Errorf("written artifact does not verify: %w", err)
	}
	return artifact, nil
}

func readArtifact(path string) (*protocol.DistributionArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a protocol.DistributionArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}
