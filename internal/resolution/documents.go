package resolution

import "strings"

// DocumentClassifier decides whether a template name denotes a document artifact.
type DocumentClassifier struct {
	suffixes []string
	catalog  map[string]struct{}
}

// NewDocumentClassifier matches names ending in one of suffixes or listed in
// catalog. Both comparisons ignore case.
func NewDocumentClassifier(suffixes, catalog []string) DocumentClassifier {
	c := DocumentClassifier{catalog: make(map[string]struct{}, len(catalog))}
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		c.suffixes = append(c.suffixes, s)
	}
	for _, name := range catalog {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			c.catalog[name] = struct{}{}
		}
	}
	return c
}

// IsDocument reports whether name is a document.
func (c DocumentClassifier) IsDocument(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if _, ok := c.catalog[name]; ok {
		return true
	}
	for _, s := range c.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
