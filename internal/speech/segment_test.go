package speech_test

import (
	"testing"

	"github.com/MrWong99/vigil/internal/speech"
)

func TestSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"three sentences", "Hello there. How are you? I am fine.", []string{"Hello there.", "How are you?", "I am fine."}},
		{"no boundary", "just one thought", []string{"just one thought"}},
		{"punctuation without space", "Version 1.2 is out!Really", []string{"Version 1.2 is out!Really"}},
		{"newline boundary", "First.\nSecond!\tThird", []string{"First.", "Second!", "Third"}},
		{"repeated whitespace", "One.    Two.", []string{"One.", "Two."}},
		{"ellipsis", "Wait... what?", []string{"Wait...", "what?"}},
		{"blank", "  \n\t ", nil},
		{"empty", "", nil},
		{"trailing whitespace", "Done.  ", []string{"Done."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := speech.Segment(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Segment(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i, u := range got {
				if u.Index != i {
					t.Errorf("unit %d has index %d", i, u.Index)
				}
				if u.Text != tt.want[i] {
					t.Errorf("unit %d = %q, want %q", i, u.Text, tt.want[i])
				}
			}
		})
	}
}

func TestSegment_Deterministic(t *testing.T) {
	t.Parallel()
	in := "A. B? C! D"
	first := speech.Segment(in)
	for range 10 {
		again := speech.Segment(in)
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("Segment not deterministic: %v vs %v", first, again)
			}
		}
	}
}

func TestCleanForSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "full markdown document",
			in: "# Title\n\nHere is **bold** and *italic* text.\n\n- first item\n- second item\n\n" +
				"See [docs](http://x) and `code`.\n```go\nfmt.Println()\n```\nDone!!",
			want: "Title. Here is bold and italic text. first item second item. See docs and code. Done!",
		},
		{"numbered list", "1. one\n2. two", "one two"},
		{"underscore emphasis", "a __big__ and _small_ word", "a big and small word"},
		{"snake case survives", "call read_frame now", "call read_frame now"},
		{"space before punctuation", "Hello , world !", "Hello, world!"},
		{"plain", "  nothing to do  ", "nothing to do"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := speech.CleanForSpeech(tt.in); got != tt.want {
				t.Errorf("CleanForSpeech(%q)\n got  %q\n want %q", tt.in, got, tt.want)
			}
		})
	}
}
