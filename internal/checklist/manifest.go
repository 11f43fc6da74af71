package checklist

// ManifestEntry pairs an outstanding item with its section.
type ManifestEntry struct {
	Section string `json:"section"`
	Item    Item   `json:"item"`
}

// DeriveManifest lists items that are not OK or are monitored, in document order.
func DeriveManifest(d Document) []ManifestEntry {
	out := []ManifestEntry{}
	for _, sec := range d.Sections {
		for _, it := range sec.Items {
			if it.Status != StatusOK || it.Monitored() {
				if it.IsMonitor != nil {
					v := *it.IsMonitor
					it.IsMonitor = &v
				}
				out = append(out, ManifestEntry{Section: sec.Name, Item: it})
			}
		}
	}
	return out
}

// Counts tallies items by status.
func Counts(d Document) map[Status]int {
	counts := map[Status]int{StatusOK: 0, StatusAttention: 0, StatusRepair: 0}
	for _, sec := range d.Sections {
		for _, it := range sec.Items {
			counts[it.Status]++
		}
	}
	return counts
}

// Worst returns the most severe status present in the document.
func Worst(d Document) Status {
	counts := Counts(d)
	switch {
	case counts[StatusRepair] > 0:
		return StatusRepair
	case counts[StatusAttention] > 0:
		return StatusAttention
	}
	return StatusOK
}
