package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePatternsEscapeWildcards(t *testing.T) {
	tests := []struct {
		in       string
		contains string
		prefix   string
	}{
		{" BC-01 ", "%bc-01%", "BC-01%"},
		{"A_1", `%a\_1%`, `A\_1%`},
		{"50%", `%50\%%`, `50\%%`},
		{`C:\x`, `%c:\\x%`, `C:\\x%`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.contains, likeContains(tt.in))
			assert.Equal(t, tt.prefix, likePrefix(tt.in))
		})
	}
}

func TestPaginate(t *testing.T) {
	offset, limit := paginate(0, 0)
	assert.Equal(t, 0, offset)
	assert.Equal(t, defaultPageSize, limit)

	offset, limit = paginate(3, 25)
	assert.Equal(t, 50, offset)
	assert.Equal(t, 25, limit)
}
