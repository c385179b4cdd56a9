package extract

// Page is one page of extracted text. Section carries the most recently seen
// heading; it is never empty once extraction finishes.
type Page struct {
	Page    int    `json:"page"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

// ParsedDocument is the cached extraction result for one document's content.
// Pages are 1-based and strictly increasing.
type ParsedDocument struct {
	DocumentID  string `json:"documentId"`
	ContentHash string `json:"contentHash"`
	Pages       []Page `json:"pages"`
}

// MaxPage returns the highest page number, or 0 for an empty document.
func (d ParsedDocument) MaxPage() int {
	if len(d.Pages) == 0 {
		return 0
	}
	return d.Pages[len(d.Pages)-1].Page
}

// HasSection reports whether any page carries the given section label.
func (d ParsedDocument) HasSection(section string) bool {
	for _, p := range d.Pages {
		if p.Section == section {
			return true
		}
	}
	return false
}
