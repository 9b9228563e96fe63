package normalize

import (
	"reflect"
	"testing"
)

func TestNormalizeTrackString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TrackString
	}{
		{
			name:  "artist dash title",
			input: "Bicep - Glue",
			want: TrackString{
				Artist:         "bicep",
				Title:          "glue",
				NormalizedFull: "bicep - glue",
			},
		},
		{
			name:  "accented artist folds to ascii",
			input: "Tiësto - Adagio For Strings",
			want: TrackString{
				Artist:         "tiesto",
				Title:          "adagio for strings",
				NormalizedFull: "tiesto - adagio for strings",
			},
		},
		{
			name:  "featuring and ampersand standardize",
			input: "Artist A & Artist B feat. C - Some Song",
			want: TrackString{
				Artist:         "artist a and artist b featuring c",
				Title:          "some song",
				NormalizedFull: "artist a and artist b featuring c - some song",
			},
		},
		{
			name:  "parenthesized remix extracts version",
			input: "Faithless - Insomnia (Avicii Remix)",
			want: TrackString{
				Artist:         "faithless",
				Title:          "insomnia",
				Version:        "avicii remix",
				RemixType:      "remix",
				IsRemix:        true,
				NormalizedFull: "faithless - insomnia",
			},
		},
		{
			name:  "original mix is a version but not a remix",
			input: "Adam Beyer - Your Mind (Original Mix)",
			want: TrackString{
				Artist:         "adam beyer",
				Title:          "your mind",
				Version:        "original mix",
				NormalizedFull: "adam beyer - your mind",
			},
		},
		{
			name:  "no separator leaves artist empty",
			input: "Sandstorm",
			want: TrackString{
				Title:          "sandstorm",
				NormalizedFull: "sandstorm",
			},
		},
		{
			name:  "en dash separator",
			input: "Moderat – A New Error",
			want: TrackString{
				Artist:         "moderat",
				Title:          "a new error",
				NormalizedFull: "moderat - a new error",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackString(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTrackString(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTrackStringIdempotent(t *testing.T) {
	inputs := []string{
		"Bicep - Glue",
		"Tiësto - Adagio For Strings",
		"Faithless - Insomnia (Avicii Remix)",
		"Artist A & B feat. C - Song",
	}
	for _, input := range inputs {
		first := NormalizeTrackString(input)
		second := NormalizeTrackString(first.NormalizedFull)
		if second.Artist != first.Artist || second.Title != first.Title {
			t.Errorf("not idempotent for %q: first=%+v second=%+v", input, first, second)
		}
	}
}

func TestNormalizeArtist(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tiësto", "tiesto"},
		{"A & B", "a and b"},
		{"DJ Fresh vs. Sigma", "dj fresh versus sigma"},
		{"Artist, Other", "artist and other"},
		{"KiNK x Honey Dijon", "kink and honey dijon"},
		{"  Spaced   Out  ", "spaced out"},
		{"Jean-Michel Jarre", "jean-michel jarre"},
	}
	for _, tt := range tests {
		if got := NormalizeArtist(tt.input); got != tt.want {
			t.Errorf("NormalizeArtist(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeTitleOnly(t *testing.T) {
	got := NormalizeTitleOnly("Strobe (Club Edit)", true)
	if got.Title != "strobe" {
		t.Errorf("Title = %q, want %q", got.Title, "strobe")
	}
	if got.Version != "club edit" {
		t.Errorf("Version = %q, want %q", got.Version, "club edit")
	}
	if got.IsRemix {
		t.Error("edit should not mark IsRemix")
	}

	plain := NormalizeTitleOnly("Strobe (Club Edit)", false)
	if plain.Title != "strobe club edit" {
		t.Errorf("without extraction Title = %q, want %q", plain.Title, "strobe club edit")
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("One, Two & Three!")
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}
