package service

import (
	"context"
	"errors"
)

// ErrMisalignedBatch marks results of a batch that did not return one result per call
var ErrMisalignedBatch = errors.New("batch returned a different number of results than calls")

// batchReadChunked splits calls into multi-read requests of at most size calls
// and returns results aligned with calls
func batchReadChunked(ctx context.Context, reader ChainReader, calls []ReadCall, size int) []ReadResult {
	if size < 1 {
		size = len(calls)
	}

	results := make([]ReadResult, 0, len(calls))
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}

		chunk := reader.BatchRead(ctx, calls[start:end])
		if len(chunk) != end-start {
			chunk = make([]ReadResult, end-start)
			for i := range chunk {
				chunk[i].Err = ErrMisalignedBatch
			}
		}
		results = append(results, chunk...)
	}
	return results
}
