// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Count is one bucket of a grouping.
type Count struct {
	Key   string
	Count int
}

// Counts is a grouping sorted lexicographically by key. It serializes as an
// object whose keys keep that order in both JSON and YAML.
type Counts []Count

func sortedCounts(m map[string]int) Counts {
	out := make(Counts, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get returns the count for key, 0 when absent.
func (c Counts) Get(key string) int {
	i := sort.Search(len(c), func(i int) bool { return c[i].Key >= key })
	if i < len(c) && c[i].Key == key {
		return c[i].Count
	}
	return 0
}

// Total sums every bucket.
func (c Counts) Total() int {
	n := 0
	for _, e := range c {
		n += e.Count
	}
	return n
}

// Map returns the grouping as a plain map.
func (c Counts) Map() map[string]int {
	m := make(map[string]int, len(c))
	for _, e := range c {
		m[e.Key] = e.Count
	}
	return m
}

func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(e.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = sortedCounts(m)
	return nil
}

func (c Counts) MarshalYAML() (any, error) {
	out := make(yaml.MapSlice, 0, len(c))
	for _, e := range c {
		out = append(out, yaml.MapItem{Key: e.Key, Value: e.Count})
	}
	return out, nil
}
