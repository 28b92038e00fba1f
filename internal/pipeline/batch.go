package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// DefaultWorkers is used when a batch is given a non-positive worker count
const DefaultWorkers = 4

// HandleFunc runs one document of a batch
type HandleFunc func(ctx context.Context, doc invoice.RawDocument) (*invoice.ProcessingResult, error)

type job struct {
	index int
	doc   invoice.RawDocument
}

// Batch processes docs on a pool of workers, committing each stored result,
// and returns the results in input order. Documents whose run failed have a
// nil result and contribute to the joined error.
func (p *Pipeline) Batch(ctx context.Context, docs []invoice.RawDocument, workers int) ([]*invoice.ProcessingResult, error) {
	return RunBatch(ctx, docs, workers, func(ctx context.Context, doc invoice.RawDocument) (*invoice.ProcessingResult, error) {
		result, err := p.Process(ctx, doc)
		if err != nil {
			return nil, err
		}
		if err := p.Commit(result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// RunBatch hands docs to handle on a pool of workers. Results keep input
// order; a failed document leaves nil and its error joins the returned one.
// Documents not yet started when ctx is done are skipped.
func RunBatch(ctx context.Context, docs []invoice.RawDocument, workers int, handle HandleFunc) ([]*invoice.ProcessingResult, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	results := make([]*invoice.ProcessingResult, len(docs))
	ch := make(chan job)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range ch {
				result, err := handle(ctx, j.doc)
				if err != nil {
					slog.Error("Processing failed", "worker_id", workerID, "document", j.doc.Name, "error", err)
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					continue
				}
				results[j.index] = result
			}
		}(i + 1)
	}

feed:
	for i, doc := range docs {
		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case ch <- job{index: i, doc: doc}:
				continue
			}
		}
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		break feed
	}
	close(ch)
	wg.Wait()

	return results, errors.Join(errs...)
}
