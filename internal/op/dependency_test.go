package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDependencies_Valid(t *testing.T) {
	require.NoError(t, DefaultDependencies().Validate())
}

func TestDependencyTable_Order(t *testing.T) {
	deps := DefaultDependencies()

	tests := []struct {
		name    string
		present []Category
		want    []Category
	}{
		{
			name:    "dependency runs first",
			present: []Category{StyleApply, StyleInit},
			want:    []Category{StyleInit, StyleApply},
		},
		{
			name:    "independent categories keep admission order",
			present: []Category{CameraUpdate, DataRemove},
			want:    []Category{CameraUpdate, DataRemove},
		},
		{
			name:    "duplicates collapse",
			present: []Category{DataAdd, DataAdd, StyleInit, DataAdd},
			want:    []Category{StyleInit, DataAdd},
		},
		{
			name:    "render waits for every present dependency",
			present: []Category{LayoutUpdate, StyleApply, DataAdd, StyleInit, RenderUpdate},
			want:    []Category{StyleInit, StyleApply, DataAdd, LayoutUpdate, RenderUpdate},
		},
		{
			name:    "edges through absent categories are ignored",
			present: []Category{CameraUpdate, StyleInit},
			want:    []Category{CameraUpdate, StyleInit},
		},
		{
			name:    "empty",
			present: nil,
			want:    []Category{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deps.Order(tt.present)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDependencyTable_OrderDetectsCycle(t *testing.T) {
	deps := DependencyTable{
		StyleInit:  {StyleApply},
		StyleApply: {StyleInit},
	}

	_, err := deps.Order([]Category{StyleInit, StyleApply, DataAdd})
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []Category{StyleInit, StyleApply}, ce.Categories)
}

func TestDependencyTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		deps    DependencyTable
		wantErr string
		cycle   bool
	}{
		{"unknown dependent", DependencyTable{"bogus": {StyleInit}}, "unknown category", false},
		{"unknown dependency", DependencyTable{StyleApply: {"bogus"}}, "unknown category", false},
		{"self dependency", DependencyTable{DataAdd: {DataAdd}}, "dependency cycle", true},
		{"long cycle", DependencyTable{
			DataAdd:      {LayoutSet},
			LayoutSet:    {CameraUpdate},
			CameraUpdate: {DataAdd},
		}, "dependency cycle", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.deps.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.cycle, IsCycleError(err))
		})
	}
}

func TestDependencyTable_Dependents(t *testing.T) {
	deps := DefaultDependencies()

	assert.Equal(t, []Category{CameraUpdate}, deps.Dependents(LayoutSet))
	assert.Equal(t, []Category{
		StyleApply, DataAdd, DataUpdate, LayoutSet, LayoutUpdate, AlgorithmRun, CameraUpdate, RenderUpdate,
	}, deps.Dependents(StyleInit))
	assert.Empty(t, deps.Dependents(RenderUpdate))
}

func TestDependencyTable_CloneIsDeep(t *testing.T) {
	deps := DefaultDependencies()
	clone := deps.Clone()
	clone[RenderUpdate][0] = DataRemove

	assert.Equal(t, StyleApply, deps[RenderUpdate][0])
}
