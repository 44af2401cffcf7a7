package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answers(n Node) map[string]string {
	out := make(map[string]string)
	for _, ref := range Leaves(n) {
		out[ref.Path.String()] = ref.Leaf.Answer
	}
	return out
}

func TestMerge_DisjointIsLossless(t *testing.T) {
	a := mustParse(t, `{
		"Customer": {"Company Name": {"Description": "company", "User Answer": "Acme"}},
		"Budget": {"Description": "budget", "User Answer": "TBD"}
	}`)
	b := mustParse(t, `{
		"Measurement": {"Diameter": {"Description": "diameter", "User Answer": "10mm"}},
		"Codes": [{"Type": {"Description": "code type", "User Answer": "QR"}}]
	}`)

	ab, err := Merge(a, b)
	require.NoError(t, err)
	ba, err := Merge(b, a)
	require.NoError(t, err)

	want := answers(a)
	for k, v := range answers(b) {
		want[k] = v
	}
	assert.Equal(t, want, answers(ab))
	assert.Equal(t, want, answers(ba))

	// inputs untouched
	assert.Len(t, Leaves(a), 2)
	assert.Len(t, Leaves(b), 2)
}

func TestMerge_SharedObjectsUnion(t *testing.T) {
	a := mustParse(t, `{"Measurement": {"Diameter": {"Description": "diameter", "User Answer": "10mm"}}}`)
	b := mustParse(t, `{"Measurement": {"Thickness": {"Description": "thickness", "User Answer": "TBD"}}}`)

	got, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Measurement / Diameter":  "10mm",
		"Measurement / Thickness": TBD,
	}, answers(got))
}

func TestMerge_SharedLeafAnswers(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"tbd yields", TBD, "10mm", "10mm"},
		{"tbd yields reversed", "10mm", TBD, "10mm"},
		{"same value", "10 mm", "10  MM", "10 mm"},
		{"different values", "10mm", "12mm", Conflict},
		{"conflict sticks", Conflict, "10mm", Conflict},
		{"both tbd", TBD, TBD, TBD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Object{Fields: []Field{{Name: "D", Value: &Leaf{Description: "d", Answer: tt.a}}}}
			b := &Object{Fields: []Field{{Name: "D", Value: &Leaf{Description: "d", Answer: tt.b}}}}

			got, err := Merge(a, b)
			require.NoError(t, err)
			leaf, ok := LeafAt(got, Path{"D"})
			require.True(t, ok)
			assert.Equal(t, tt.want, leaf.Answer)
		})
	}
}

func TestMerge_StructuralConflicts(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		path string
	}{
		{
			name: "description differs",
			a:    `{"M": {"D": {"Description": "diameter", "User Answer": "TBD"}}}`,
			b:    `{"M": {"D": {"Description": "depth", "User Answer": "TBD"}}}`,
			path: "M / D",
		},
		{
			name: "leaf vs object",
			a:    `{"M": {"Description": "m", "User Answer": "TBD"}}`,
			b:    `{"M": {"D": {"Description": "d", "User Answer": "TBD"}}}`,
			path: "M",
		},
		{
			name: "sequence vs object",
			a:    `{"M": []}`,
			b:    `{"M": {}}`,
			path: "M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(mustParse(t, tt.a), mustParse(t, tt.b))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStructuralConflict)

			var sc *StructuralConflictError
			require.True(t, errors.As(err, &sc))
			assert.Equal(t, tt.path, sc.Path.String())
		})
	}
}

func TestMerge_Empty(t *testing.T) {
	got, err := Merge()
	require.NoError(t, err)
	assert.Empty(t, Leaves(got))
}

func TestResolveCandidates(t *testing.T) {
	assert.Equal(t, TBD, ResolveCandidates(nil))
	assert.Equal(t, TBD, ResolveCandidates([]string{"", " TBD "}))
	assert.Equal(t, "10mm", ResolveCandidates([]string{"10mm"}))
	assert.Equal(t, "10mm", ResolveCandidates([]string{"10mm", "10MM", "tbd"}))
	assert.Equal(t, Conflict, ResolveCandidates([]string{"10mm", "12mm"}))
	assert.Equal(t, Conflict, ResolveCandidates([]string{"conflict"}))
}
