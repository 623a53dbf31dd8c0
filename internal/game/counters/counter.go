package counters

import "sort"

// Counter is a named token count on a card in play.
type Counter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counters is a multiset of counter counts keyed by counter name. Values are
// never negative. A Counters value is treated as immutable: every mutating
// method returns a fresh map.
type Counters map[string]int

// New creates an empty counter set.
func New() Counters {
	return make(Counters)
}

// Add returns a copy with amount added to name. amount may be negative; the
// stored value is floored at zero. A missing key starts at zero and is kept
// even when the result is zero, so clients can render an empty token slot.
func (cs Counters) Add(name string, amount int) Counters {
	next := cs.Clone()
	value := next[name] + amount
	if value < 0 {
		value = 0
	}
	next[name] = value
	return next
}

// Remove returns a copy without the named counter.
func (cs Counters) Remove(name string) Counters {
	next := cs.Clone()
	delete(next, name)
	return next
}

// Get returns the count for name, zero when absent.
func (cs Counters) Get(name string) int {
	return cs[name]
}

// Has reports whether name holds at least one token.
func (cs Counters) Has(name string) bool {
	return cs[name] > 0
}

// Total returns the sum of all counts.
func (cs Counters) Total() int {
	total := 0
	for _, count := range cs {
		total += count
	}
	return total
}

// Clone creates a deep copy. A nil receiver yields an empty set.
func (cs Counters) Clone() Counters {
	next := make(Counters, len(cs)+1)
	for name, count := range cs {
		next[name] = count
	}
	return next
}

// Sorted returns the counters ordered by name.
func (cs Counters) Sorted() []Counter {
	out := make([]Counter, 0, len(cs))
	for name, count := range cs {
		out = append(out, Counter{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
