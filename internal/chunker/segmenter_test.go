package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexSegmenter(t *testing.T) {
	seg := NewRegexSegmenter()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "A. B. C.", []string{"A.", "B.", "C."}},
		{"mixed terminators", "Really?! Yes. Wow!", []string{"Really?!", "Yes.", "Wow!"}},
		{"ellipsis", "Wait... Go.", []string{"Wait...", "Go."}},
		{"remainder kept", "Done. and then", []string{"Done.", "and then"}},
		{"newlines", "Line one.\nLine two.", []string{"Line one.", "Line two."}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seg.Sentences(tt.text))
		})
	}
}

func TestPunktSegmenter(t *testing.T) {
	seg, err := NewPunktSegmenter()
	require.NoError(t, err)

	got := seg.Sentences("The cat sat on the mat. The dog ran away.")
	assert.Equal(t, []string{"The cat sat on the mat.", "The dog ran away."}, got)
	assert.Empty(t, seg.Sentences("   "))
}

func TestNewSegmenter(t *testing.T) {
	s, err := NewSegmenter("regex")
	require.NoError(t, err)
	assert.IsType(t, &RegexSegmenter{}, s)

	s, err = NewSegmenter("punkt")
	require.NoError(t, err)
	assert.IsType(t, &PunktSegmenter{}, s)

	_, err = NewSegmenter("spacy")
	assert.Error(t, err)
}
