package swarm

import "testing"

func TestGroupByKeySingleValue(t *testing.T) {
	results := []ItemResult{
		{Item: `{"team":"red","score":1}`, Output: "r1"},
		{Item: `{"team":"blue","score":2}`, Output: "b1"},
		{Item: `{"team":"red","score":3}`, Output: "r2"},
	}
	partitions := GroupByKey(results, "team", "duplicate")
	if len(partitions) != 2 {
		t.Fatalf("got %d partitions: %+v", len(partitions), partitions)
	}
	byKey := map[string]int{}
	for _, p := range partitions {
		byKey[p.Key] = len(p.Items)
	}
	if byKey["red"] != 2 || byKey["blue"] != 1 {
		t.Fatalf("got %+v", byKey)
	}
}

func TestGroupByKeyMultiKeyDuplicate(t *testing.T) {
	results := []ItemResult{
		{Item: `{"tags":["a","b"]}`, Output: "x"},
	}
	partitions := GroupByKey(results, "tags", "duplicate")
	if len(partitions) != 2 {
		t.Fatalf("got %+v", partitions)
	}
}

func TestGroupByKeyMultiKeyFirst(t *testing.T) {
	results := []ItemResult{
		{Item: `{"tags":["a","b"]}`, Output: "x"},
	}
	partitions := GroupByKey(results, "tags", "first")
	if len(partitions) != 1 || partitions[0].Key != "a" {
		t.Fatalf("got %+v", partitions)
	}
}

func TestSplitOversized(t *testing.T) {
	p := Partition{Key: "k", Items: make([]ItemResult, 5)}
	out := SplitOversized([]Partition{p}, 2)
	if len(out) != 3 {
		t.Fatalf("got %d partitions", len(out))
	}
	for _, part := range out {
		if part.Key != "k" {
			t.Fatalf("key mismatch: %+v", part)
		}
	}
}

func TestSplitOversizedNoopWhenSmaller(t *testing.T) {
	p := Partition{Key: "k", Items: make([]ItemResult, 2)}
	out := SplitOversized([]Partition{p}, 10)
	if len(out) != 1 {
		t.Fatalf("got %v", out)
	}
}
