package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"nftswap/internal/allowlist"
)

type proofOutput struct {
	Root        string   `json:"root"`
	Size        uint64   `json:"size"`
	Identifiers []string `json:"identifiers"`
	Nodes       []string `json:"nodes"`
	Flags       []bool   `json:"flags"`
}

func runProve(cmd *cobra.Command, _ []string) error {
	committed, _ := cmd.Flags().GetStringSlice("allowlist")
	subset, _ := cmd.Flags().GetStringSlice("ids")
	if len(committed) == 0 {
		return fmt.Errorf("allowlist is required")
	}
	if len(subset) == 0 {
		return fmt.Errorf("ids are required")
	}

	committedIDs, err := parseIdentifiers(committed)
	if err != nil {
		return err
	}
	subsetIDs, err := parseIdentifiers(subset)
	if err != nil {
		return err
	}

	tree, err := allowlist.NewTree(committedIDs)
	if err != nil {
		return err
	}
	ordered, proof, err := tree.Prove(subsetIDs)
	if err != nil {
		return err
	}

	out := proofOutput{
		Root:        tree.Root().Hex(),
		Size:        tree.Commitment().Size,
		Identifiers: make([]string, len(ordered)),
		Nodes:       make([]string, len(proof.Nodes)),
		Flags:       proof.Flags,
	}
	for i, id := range ordered {
		out.Identifiers[i] = id.Dec()
	}
	for i, node := range proof.Nodes {
		out.Nodes[i] = node.Hex()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func parseIdentifiers(raw []string) ([]*uint256.Int, error) {
	ids := make([]*uint256.Int, 0, len(raw))
	for _, item := range raw {
		id, err := uint256.FromDecimal(item)
		if err != nil {
			return nil, fmt.Errorf("invalid identifier %q: %w", item, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
