package swarm

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Partition is one key-group produced by the shuffle phase. A key may be
// split across several Partitions if it grew past max_partition_size.
type Partition struct {
	Key   string
	Items []ItemResult
}

// GroupByKey groups mapped results by the value of keyField within each
// result's original item (assumed to be a JSON object). multiKey controls
// what happens when the field holds a JSON array: "duplicate" (default)
// places the item in every named partition, "first" places it only in the
// partition for the array's first element. Items that are not a JSON object
// or lack keyField are grouped under the empty-string key; any other
// non-string, non-array value is keyed by its JSON text.
//
// Partition order is the order each key was first seen, for reproducible
// output.
func GroupByKey(results []ItemResult, keyField, multiKey string) []Partition {
	index := map[string]int{}
	var partitions []Partition

	add := func(key string, r ItemResult) {
		i, ok := index[key]
		if !ok {
			i = len(partitions)
			index[key] = i
			partitions = append(partitions, Partition{Key: key})
		}
		partitions[i].Items = append(partitions[i].Items, r)
	}

	for _, r := range results {
		if r.Err != nil {
			continue // shuffle only groups successful map outputs
		}
		keys := extractKeys(r.Item, keyField, multiKey)
		if len(keys) == 0 {
			add("", r)
			continue
		}
		for _, k := range keys {
			add(k, r)
		}
	}
	return partitions
}

func extractKeys(item, keyField, multiKey string) []string {
	var obj map[string]json.RawMessage
	if json.Unmarshal([]byte(item), &obj) != nil {
		return nil
	}
	raw, ok := obj[keyField]
	if !ok {
		return nil
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}
	}

	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil {
		var vals []string
		for _, v := range arr {
			var sv string
			if json.Unmarshal(v, &sv) == nil {
				vals = append(vals, sv)
			} else {
				vals = append(vals, string(v))
			}
		}
		if len(vals) == 0 {
			return nil
		}
		if multiKey == "first" {
			return vals[:1]
		}
		return vals
	}

	return []string{string(raw)}
}

// SplitOversized sub-splits any partition larger than maxSize into several
// same-keyed partitions (spec §4.4 shuffle sub-splitting), so a single hot
// key never produces one oversized reduce prompt.
func SplitOversized(partitions []Partition, maxSize int) []Partition {
	if maxSize <= 0 {
		return partitions
	}
	var out []Partition
	for _, p := range partitions {
		if len(p.Items) <= maxSize {
			out = append(out, p)
			continue
		}
		for start := 0; start < len(p.Items); start += maxSize {
			end := start + maxSize
			if end > len(p.Items) {
				end = len(p.Items)
			}
			out = append(out, Partition{Key: p.Key, Items: p.Items[start:end]})
		}
	}
	return out
}

// SortedKeys returns the distinct partition keys in lexical order, useful
// for deterministic final-merge prompt ordering.
func SortedKeys(partitions []Partition) []string {
	seen := map[string]bool{}
	var keys []string
	for _, p := range partitions {
		if !seen[p.Key] {
			seen[p.Key] = true
			keys = append(keys, p.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// RenderShuffleReducePrompt builds the prompt for reducing one partition:
// the configured reduce_prompt (or a generic fallback) followed by every
// item's mapped output, one per line.
func RenderShuffleReducePrompt(reducePrompt, key string, items []ItemResult) string {
	if reducePrompt == "" {
		reducePrompt = "Summarize the following grouped results."
	}
	out := fmt.Sprintf("%s\n\nGroup: %s\n\n", reducePrompt, key)
	for _, it := range items {
		out += "- " + it.Output + "\n"
	}
	return out
}
