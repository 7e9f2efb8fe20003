package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentClassifier(t *testing.T) {
	c := NewDocumentClassifier([]string{".pdf", "xlsx", " "}, []string{"Product_Catalog_2024.pdf", "Rate Card"})

	tests := []struct {
		name string
		want bool
	}{
		{"Enterprise_Pricing_v2.pdf", true},
		{"budget.XLSX", true},
		{"rate card", true},
		{"Rate Card v2", false},
		{"Welcome Back", false},
		{"pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsDocument(tt.name), tt.name)
	}
}

func TestDocumentClassifierZeroValue(t *testing.T) {
	var c DocumentClassifier
	assert.False(t, c.IsDocument("file.pdf"))
}
