package thread

// Flat is a message with its replies stripped, as emitted by Flatten.
type Flat struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"message"`
}

// Flatten walks the forest depth-first, emitting each message before its
// replies and each reply subtree before the next sibling.
func Flatten(forest []Message) []Flat {
	out := make([]Flat, 0, Count(forest))
	var walk func(msgs []Message)
	walk = func(msgs []Message) {
		for _, m := range msgs {
			out = append(out, Flat{ID: m.ID, Author: m.Author, Text: m.Text})
			walk(m.Replies)
		}
	}
	walk(forest)
	return out
}

// Index maps message ids to their flattened form. On duplicate ids the first
// occurrence in pre-order wins.
func Index(flat []Flat) map[string]Flat {
	idx := make(map[string]Flat, len(flat))
	for _, f := range flat {
		if _, ok := idx[f.ID]; !ok {
			idx[f.ID] = f
		}
	}
	return idx
}
