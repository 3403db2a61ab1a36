package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/trellis/api"
	"golang.org/x/sync/errgroup"
)

var ErrUnsupportedFile = errors.New("unsupported input file")

// LoadFiles parses paths concurrently and merges the payloads in argument
// order, so imports stay deterministic.
func LoadFiles(ctx context.Context, paths ...string) (*api.Payload, error) {
	load := make([]Loader, len(paths))
	for i, path := range paths {
		l, ok := LoaderFor(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
		}
		load[i] = l
	}

	parts := make([]*api.Payload, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := load[i](gctx, path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &api.Payload{}
	for _, p := range parts {
		merged.Merge(p)
	}
	return merged, nil
}

// ImportFiles loads paths and imports the merged payload.
func (im *Importer) ImportFiles(ctx context.Context, paths ...string) error {
	p, err := LoadFiles(ctx, paths...)
	if err != nil {
		return err
	}
	return im.ImportPayload(p)
}
