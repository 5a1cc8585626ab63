package transform

// Departures counts flights per origin airport. Counts from disjoint
// partitions combine with Merge in any order.
type Departures map[string]int64

// Add counts one departure from airport. Empty codes are ignored.
func (d Departures) Add(airport string) {
	if airport == "" {
		return
	}
	d[airport]++
}

// Merge adds other into d. Merging into a nil map is a no-op.
func (d Departures) Merge(other Departures) {
	if d == nil {
		return
	}
	for airport, n := range other {
		d[airport] += n
	}
}

// Total is the number of counted departures.
func (d Departures) Total() int64 {
	var total int64
	for _, n := range d {
		total += n
	}
	return total
}
