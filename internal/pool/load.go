package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LoadOptions names the item properties used during ingestion.
type LoadOptions struct {
	IDField       string
	TextField     string
	CategoryField string
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.IDField == "" {
		o.IDField = "id"
	}
	if o.TextField == "" {
		o.TextField = "text"
	}
	return o
}

// LoadFiles reads JSON-lines item files into the pool. Files are parsed
// concurrently but ingested in file order, line order, so the pool's load
// order (and therefore fixed-order assignment) is deterministic for a given
// file list.
func (p *Pool) LoadFiles(ctx context.Context, paths []string, opts LoadOptions) error {
	opts = opts.withDefaults()

	parsed := make([][]map[string]any, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records, err := parseItemFile(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			parsed[i] = records
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, records := range parsed {
		for lineNo, properties := range records {
			id, ok := properties[opts.IDField].(string)
			if !ok || id == "" {
				return fmt.Errorf("load %s: line %d: missing %q field", paths[i], lineNo+1, opts.IDField)
			}
			if err := p.AddItem(id, properties, opts.TextField, opts.CategoryField); err != nil {
				return fmt.Errorf("load %s: line %d: %w", paths[i], lineNo+1, err)
			}
		}
	}
	return nil
}

func parseItemFile(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var properties map[string]any
		if err := json.Unmarshal([]byte(line), &properties); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, properties)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
