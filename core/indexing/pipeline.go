package indexing

import (
	"fmt"
	"sync"

	"scriptindex/core/store"
	"scriptindex/pkg/rlimit"
)

// blobMsg is what the reader stage hands the indexer stages.
type blobMsg struct {
	blob []byte
	path string
}

// rowsMsg is what an indexer stage hands the writer stage.
type rowsMsg struct {
	rows []store.Row
	path string
}

// openFilesLimit is the soft RLIMIT_NOFILE raised before a bulk run,
// twice the common default `ulimit -n` value.
const openFilesLimit = 2048

// RunBulkPipeline wires one reader, K indexer, and one writer goroutine
// over capacity-zero (rendezvous) channels and runs them to completion,
// returning the store once every block-file has been indexed and the
// sentinel row committed.
//
// Back-pressure is intentional: both channels are unbuffered, so a slow
// writer stalls indexers and slow indexers stall the reader. Memory use
// is bounded by one in-flight blob per reader, K in-flight blobs across
// indexers, and K in-flight row batches awaiting the writer.
//
// Any reader, indexer, or writer error is fatal to the run and is
// returned to the caller; there are no retries. Because the indexed-hash
// set already reflects prior runs (loaded from the store at startup), a
// re-run after a crash or fatal error just re-walks the same files and
// hits the "duplicate" path for blocks already committed.
func RunBulkPipeline(paths []string, numIndexers int, parser *Parser, st store.Store) (store.Store, error) {
	if numIndexers < 1 {
		numIndexers = 1
	}
	if err := rlimit.RaiseNoFile(openFilesLimit); err != nil {
		return nil, fmt.Errorf("bulk pipeline: %w", err)
	}

	blobs := make(chan blobMsg)
	rows := make(chan rowsMsg)
	done := make(chan struct{})

	var (
		errOnce sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			close(done)
		})
	}

	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		defer close(blobs)
		for _, path := range paths {
			blob, err := parser.ReadBlockFile(path)
			if err != nil {
				fail(fmt.Errorf("bulk reader: %w", err))
				return
			}
			select {
			case blobs <- blobMsg{blob: blob, path: path}:
			case <-done:
				return
			}
		}
	}()

	var indexerWG sync.WaitGroup
	for i := 0; i < numIndexers; i++ {
		indexerWG.Add(1)
		go func() {
			defer indexerWG.Done()
			for {
				var (
					msg blobMsg
					ok  bool
				)
				select {
				case msg, ok = <-blobs:
					if !ok {
						return
					}
				case <-done:
					return
				}
				r, err := parser.IndexFile(msg.blob)
				if err != nil {
					fail(fmt.Errorf("bulk indexer: failed to index %s: %w", msg.path, err))
					return
				}
				select {
				case rows <- rowsMsg{rows: r, path: msg.path}:
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		indexerWG.Wait()
		close(rows)
	}()

writeLoop:
	for {
		select {
		case msg, ok := <-rows:
			if !ok {
				break writeLoop
			}
			if err := st.Write(msg.rows); err != nil {
				fail(fmt.Errorf("bulk writer: failed to write rows for %s: %w", msg.path, err))
			}
		case <-done:
			// Drain so indexer/reader goroutines currently blocked on a
			// send see the channel close rather than hanging forever.
			go func() {
				for range rows {
				}
			}()
			break writeLoop
		}
	}

	readerWG.Wait()
	indexerWG.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	sentinel, err := parser.LastIndexedRow()
	if err != nil {
		return nil, fmt.Errorf("bulk writer: %w", err)
	}
	if err := st.Write([]store.Row{sentinel}); err != nil {
		return nil, fmt.Errorf("bulk writer: failed to write sentinel row: %w", err)
	}
	return st, nil
}
