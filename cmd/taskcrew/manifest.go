package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kazz187/taskcrew/internal/manifest"
)

func runManifestPrint() error {
	m := manifest.Default()
	if *manifestFormat == "json" {
		return printJSON(m)
	}
	out, err := m.Render()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runManifestOpenAPI() error {
	doc := manifest.Default().OpenAPI()
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("generated OpenAPI document is invalid: %w", err)
	}
	return printJSON(doc)
}

var errManifestDrift = errors.New("manifest differs from the stored copy")

func runManifestDiff() error {
	stored, err := os.ReadFile(*manifestDiffFile)
	if err != nil {
		return err
	}
	diff, err := manifest.Default().Diff(*manifestDiffFile, stored)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Println("manifest is up to date")
		return nil
	}
	fmt.Print(diff)
	return errManifestDrift
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
