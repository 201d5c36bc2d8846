package disambiguate

import (
	"reflect"
	"testing"

	"github.com/devicelab-dev/uiresolve/pkg/scoring"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name  string
		cands []scoring.Candidate
		want  []string
	}{
		{
			name: "empty",
			want: nil,
		},
		{
			name:  "single candidate",
			cands: []scoring.Candidate{{Text: "OK", Class: "Button", Confidence: 0.9}},
			want:  nil,
		},
		{
			name: "same text different class",
			cands: []scoring.Candidate{
				{Text: "确定", Class: "android.widget.Button", Confidence: 0.8},
				{Text: "确定", Class: "android.widget.TextView", Confidence: 0.8},
			},
			want: []string{SpecificClass, PositionIndex, PathPrefix, NearbyAnchor, Coordinate},
		},
		{
			name: "different text far apart",
			cands: []scoring.Candidate{
				{Text: "Follow", Class: "Button", Confidence: 0.9},
				{Text: "Following", Class: "Button", Confidence: 0.6},
			},
			want: []string{SpecificText, PositionIndex, PathPrefix, NearbyAnchor},
		},
		{
			name: "identical",
			cands: []scoring.Candidate{
				{Text: "Like", Class: "ImageView", Confidence: 0.7},
				{Text: "Like", Class: "ImageView", Confidence: 0.75},
				{Text: "Like", Class: "ImageView", Confidence: 0.8},
			},
			want: []string{PositionIndex, PathPrefix, NearbyAnchor, Coordinate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.cands)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggest() = %v, want %v", got, tt.want)
			}
		})
	}
}
