package sources

import "fmt"

// Blocks is the number of blocks the window covers.
func (w Window) Blocks() uint64 {
	if w.To < w.From {
		return 0
	}
	return w.To - w.From + 1
}

// Batches cuts the window into consecutive windows of at most size blocks
// so one eth_getLogs call stays under the node's range limit. Batch
// boundaries fall between blocks, so a transaction never spans two batches.
func (w Window) Batches(size uint64) ([]Window, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if w.To < w.From {
		return nil, fmt.Errorf("window %d-%d is inverted", w.From, w.To)
	}

	batches := make([]Window, 0, (w.Blocks()+size-1)/size)
	for start := w.From; ; start += size {
		if w.To-start < size {
			batches = append(batches, Window{From: start, To: w.To})
			return batches, nil
		}
		batches = append(batches, Window{From: start, To: start + size - 1})
	}
}
