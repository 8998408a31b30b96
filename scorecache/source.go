package scorecache

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/iter"
)

// Source is an interface that the refresher uses to fetch scores. Each
// Source is a specific supplier of the complete score dataset.
type Source interface {
	// FetchAll gets the scores of all entities.
	FetchAll(context.Context) ([]ScoreRecord, error)
	// String returns a description of the source.
	String() string
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) ([]ScoreRecord, error)

func (f SourceFunc) FetchAll(ctx context.Context) ([]ScoreRecord, error) {
	return f(ctx)
}

func (f SourceFunc) String() string {
	return "func"
}

// FetchError is the error for a refresh whose fetch failed. The previous
// snapshot remains in the cache when a FetchError occurs.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cannot fetch scores from %s: %s", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type multiSource []Source

type sourceResult struct {
	records []ScoreRecord
	err     error
}

// MultiSource returns a Source that fetches from all srcs concurrently and
// concatenates their records in the order the sources are given. Records from
// later sources therefore win over earlier ones for the same id. If any source
// fails, no records are returned and the error describes every failure.
func MultiSource(srcs ...Source) Source {
	if len(srcs) == 1 {
		return srcs[0]
	}
	return multiSource(srcs)
}

func (ms multiSource) FetchAll(ctx context.Context) ([]ScoreRecord, error) {
	results := iter.Map(ms, func(src *Source) sourceResult {
		records, err := (*src).FetchAll(ctx)
		return sourceResult{records, err}
	})

	var all []ScoreRecord
	var errs error
	for i, res := range results {
		if res.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", ms[i], res.err))
			continue
		}
		all = append(all, res.records...)
	}
	if errs != nil {
		return nil, errs
	}
	return all, nil
}

func (ms multiSource) String() string {
	names := make([]string, len(ms))
	for i, src := range ms {
		names[i] = src.String()
	}
	return strings.Join(names, ", ")
}
