// Package sample writes synthetic export files for trying out an import.
package sample

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"nexus/dataimport/config"
)

const defaultCollections = "tenants,users,matches"

// RunGenerateSample parses the generate-sample flags and writes the export file.
func RunGenerateSample(ctx context.Context, logger *slog.Logger, args []string, cfg *config.Config) error {
	genFlagSet := flag.NewFlagSet("generate-sample", flag.ContinueOnError)
	rows := genFlagSet.Int("rows", cfg.SampleRows, "Number of records to generate per collection")
	out := genFlagSet.String("out", cfg.SamplePath, "File to write the export to")
	collections := genFlagSet.String("collections", defaultCollections, "Comma-separated collection names")
	if err := genFlagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	var names []string
	for _, name := range strings.Split(*collections, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	logger.InfoContext(ctx, "Generating sample export", "path", *out, "collections", names, "rows", *rows)
	if err := GenerateExport(*out, names, *rows); err != nil {
		return fmt.Errorf("failed to generate sample export: %w", err)
	}
	logger.InfoContext(ctx, "Sample export generated successfully", "path", *out)

	return nil
}
