package loro

import (
	jsoniter "github.com/json-iterator/go"
)

var tojsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ToJSON materializes the whole document's live state as a JSON object
// keyed by root container name, with nested containers resolved inline
// (spec.md §8 property 1: "to_json() is string-equal across replicas once
// their version vectors match"). Debug/test helper, not part of the wire
// format — grounded on the original implementation's to_json used
// throughout its own test suite.
func (d *Doc) ToJSON() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocClosed
	}

	roots := make(map[string]any)
	for _, id := range d.arena.AllContainers() {
		if !id.IsRoot {
			continue
		}
		idx, ok := d.arena.TryGet(id)
		if !ok {
			continue
		}
		c, err := d.state.Container(idx)
		if err != nil {
			return nil, err
		}
		roots[id.Name] = d.state.ResolveValue(c.Value())
	}
	return tojsonAPI.Marshal(roots)
}
