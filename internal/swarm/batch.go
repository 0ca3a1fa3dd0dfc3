package swarm

// SplitBatches groups items into consecutive batches of at most batchSize
// items each (spec §4.4 Batch Split). A batchSize <= 0 falls back to
// treating the whole input as one batch.
func SplitBatches(items []string, batchSize int) [][]string {
	if batchSize <= 0 || batchSize >= len(items) {
		return [][]string{items}
	}
	var batches [][]string
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
