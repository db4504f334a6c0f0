package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name      string
		points    []SequencePoint
		want      Data
		wantEmpty bool
	}{
		{
			name: "method body range",
			points: []SequencePoint{
				{StartLine: 10, EndLine: 10, SourceFile: "MathTests.cs"},
				{StartLine: 11, EndLine: 12, SourceFile: "MathTests.cs"},
				{StartLine: 14, EndLine: 14, SourceFile: "MathTests.cs"},
			},
			want: Data{FileName: "MathTests.cs", MinLine: 10, MaxLine: 14},
		},
		{
			name: "hidden start line skipped",
			points: []SequencePoint{
				{StartLine: HiddenLine, EndLine: 3, SourceFile: "gen.cs"},
				{StartLine: 20, EndLine: 21, SourceFile: "a.cs"},
			},
			want: Data{FileName: "a.cs", MinLine: 20, MaxLine: 21},
		},
		{
			name: "hidden end line skipped",
			points: []SequencePoint{
				{StartLine: 1, EndLine: HiddenLine + 5, SourceFile: "gen.cs"},
				{StartLine: 7, EndLine: 9, SourceFile: "a.cs"},
			},
			want: Data{FileName: "a.cs", MinLine: 7, MaxLine: 9},
		},
		{
			name: "unordered records",
			points: []SequencePoint{
				{StartLine: 30, EndLine: 31, SourceFile: "a.cs"},
				{StartLine: 25, EndLine: 25, SourceFile: "a.cs"},
				{StartLine: 28, EndLine: 40, SourceFile: "a.cs"},
			},
			want: Data{FileName: "a.cs", MinLine: 25, MaxLine: 40},
		},
		{
			name: "all hidden",
			points: []SequencePoint{
				{StartLine: HiddenLine, EndLine: HiddenLine},
			},
			wantEmpty: true,
		},
		{
			name:      "no records",
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(tt.points)
			if tt.wantEmpty {
				assert.True(t, got.IsEmpty())
				assert.Greater(t, got.MinLine, got.MaxLine)
				return
			}
			assert.False(t, got.IsEmpty())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReduce_HiddenNeverContributes(t *testing.T) {
	points := []SequencePoint{
		{StartLine: 5, EndLine: 6, SourceFile: "a.go"},
		{StartLine: HiddenLine, EndLine: HiddenLine, SourceFile: "a.go"},
		{StartLine: 0xFFFFFF, EndLine: 2, SourceFile: "a.go"},
		{StartLine: 3, EndLine: 0xFFFFFFFF, SourceFile: "a.go"},
	}

	got := Reduce(points)
	assert.Equal(t, 5, got.MinLine)
	assert.Equal(t, 6, got.MaxLine)
}

func TestNormalizeTypeName(t *testing.T) {
	assert.Equal(t, "Sample.Tests.Outer.Inner", NormalizeTypeName("Sample.Tests.Outer+Inner"))
	assert.Equal(t, "Sample.Tests.MathTests", NormalizeTypeName("Sample.Tests.MathTests"))
	assert.Equal(t, "", NormalizeTypeName(""))
}

func TestData_IsEmpty(t *testing.T) {
	var nilData *Data
	assert.True(t, nilData.IsEmpty())
	assert.True(t, (&Data{MinLine: 3, MaxLine: 2}).IsEmpty())
	assert.False(t, (&Data{FileName: "a.go", MinLine: 3, MaxLine: 3}).IsEmpty())
}

func TestData_String(t *testing.T) {
	assert.Equal(t, "a.go:3", Data{FileName: "a.go", MinLine: 3, MaxLine: 3}.String())
	assert.Equal(t, "a.go:3-9", Data{FileName: "a.go", MinLine: 3, MaxLine: 9}.String())
}
