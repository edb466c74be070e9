package analyzer

import "github.com/MikeSquared-Agency/verdict/internal/thread"

// Merge pairs every flattened message with its Stage 1 keywords. The output
// has one bundle per flat message, in the same order. A message without a
// keyword record gets an empty keyword list; records for unknown ids are
// ignored; on duplicate record ids the first one wins.
func Merge(flat []thread.Flat, records []KeywordRecord) []Bundle {
	byID := make(map[string][]Keyword, len(records))
	for _, r := range records {
		if _, ok := byID[r.ID]; !ok {
			byID[r.ID] = r.Keywords
		}
	}

	bundles := make([]Bundle, len(flat))
	for i, m := range flat {
		kw := byID[m.ID]
		if kw == nil {
			kw = []Keyword{}
		}
		bundles[i] = Bundle{ID: m.ID, Author: m.Author, Text: m.Text, Keywords: kw}
	}
	return bundles
}
