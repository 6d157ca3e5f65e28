package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// readInput decodes a JSON or YAML file into v. YAML is converted to JSON
// first so both formats honour the same json field tags.
func readInput(cmd *cobra.Command, path string, v any) error {
	if path == "" {
		return fmt.Errorf("an input file is required (--file)")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse YAML input: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("failed to convert YAML input: %w", err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

func writeOutput(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
