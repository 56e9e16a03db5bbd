package bean

// Snapshot converts a bean graph into plain maps for printing. It never
// triggers a load: references render as {"$ref": key, "$state": state}
// and a bean already on the current path renders as {"$ref": key}.
func Snapshot(b *Bean) map[string]any {
	return snapshot(b, make(map[*Bean]bool))
}

// SnapshotAll converts a list of beans.
func SnapshotAll(beans []*Bean) []map[string]any {
	out := make([]map[string]any, len(beans))
	for i, b := range beans {
		out[i] = Snapshot(b)
	}
	return out
}

func snapshot(b *Bean, onPath map[*Bean]bool) map[string]any {
	key := Key(b.Type(), b.ID())
	if b.state != StateLoaded {
		return map[string]any{"$ref": key, "$state": b.state.String()}
	}
	if onPath[b] {
		return map[string]any{"$ref": key}
	}
	onPath[b] = true
	defer delete(onPath, b)

	out := map[string]any{"$type": b.Type()}
	for _, name := range b.PropertyNames() {
		out[name] = b.values[name]
	}
	for _, name := range b.OneNames() {
		ref := b.ones[name]
		if ref == nil {
			out[name] = nil
			continue
		}
		out[name] = snapshot(ref, onPath)
	}
	for _, name := range b.ManyNames() {
		c := b.many[name]
		if c.state != StateLoaded {
			out[name] = map[string]any{"$state": c.state.String()}
			continue
		}
		items := make([]any, len(c.items))
		for i, item := range c.items {
			items[i] = snapshot(item, onPath)
		}
		out[name] = items
	}
	return out
}
