package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"style-init", StyleInit, false},
		{"  Layout-Update ", LayoutUpdate, false},
		{"RENDER-UPDATE", RenderUpdate, false},
		{"mesh-update", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown category")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCategories_FailsOnFirstUnknown(t *testing.T) {
	got, err := ParseCategories([]string{"data-add", "style-init"})
	require.NoError(t, err)
	assert.Equal(t, []Category{DataAdd, StyleInit}, got)

	_, err = ParseCategories([]string{"data-add", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestAllCategories_ReturnsCopy(t *testing.T) {
	all := AllCategories()
	require.Len(t, all, 10)
	all[0] = "mutated"
	assert.Equal(t, StyleInit, AllCategories()[0])
}
