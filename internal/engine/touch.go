package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/beanplan/internal/bean"
)

// Touch walks a dot path from every root and reads each association on
// the way, the way calling code would. Deferred references and collections
// load through their execution's load context, so one touch of a lazy path
// costs one batch per level rather than one statement per bean.
func Touch(ctx context.Context, roots []*bean.Bean, path string) error {
	if path == "" {
		return errors.New("touch: empty path")
	}
	current := roots
	for _, seg := range strings.Split(path, ".") {
		var next []*bean.Bean
		seen := make(map[*bean.Bean]bool)
		add := func(b *bean.Bean) {
			if b != nil && !seen[b] {
				seen[b] = true
				next = append(next, b)
			}
		}

		for _, b := range current {
			items, err := touchOne(ctx, b, seg)
			if err != nil {
				return fmt.Errorf("touch %s: %w", path, err)
			}
			for _, item := range items {
				add(item)
			}
		}
		current = next
	}
	return nil
}

func touchOne(ctx context.Context, b *bean.Bean, name string) ([]*bean.Bean, error) {
	ref, err := b.One(ctx, name)
	if err == nil {
		if ref == nil {
			return nil, nil
		}
		if err := ref.Load(ctx); err != nil {
			return nil, err
		}
		return []*bean.Bean{ref}, nil
	}
	var nle *bean.NotLoadedError
	if !errors.As(err, &nle) {
		return nil, err
	}

	coll, err := b.Many(ctx, name)
	if err != nil {
		return nil, err
	}
	return coll.Items(ctx)
}
