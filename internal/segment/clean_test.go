package segment

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		final bool
		want  string
	}{
		{
			name: "closed code fence becomes paragraph break",
			in:   "```code\nfoo\n``` More text.",
			want: "\n\n More text.",
		},
		{
			name: "unclosed fence hides the rest while growing",
			in:   "Look at this. ```code\nfoo",
			want: "Look at this. ",
		},
		{
			name:  "unclosed fence dropped on final",
			in:    "Look at this. ```code\nfoo",
			final: true,
			want:  "Look at this. \n\n",
		},
		{
			name:  "unclosed generic tag keeps its prose on final",
			in:    "Press <Enter> to go on.",
			final: true,
			want:  "Press \n\n to go on.",
		},
		{
			name: "partial marker held back while growing",
			in:   "One sentence. <thin",
			want: "One sentence. ",
		},
		{
			name:  "partial marker kept on final",
			in:    "Greater: a <",
			final: true,
			want:  "Greater: a <",
		},
		{
			name: "reasoning and tool artifacts removed",
			in:   "<thinking>hmm</thinking>Hi.<function_calls><invoke name=\"x\"></invoke></function_calls>Bye.",
			want: "\n\nHi.\n\nBye.",
		},
		{
			name: "whitespace collapsed",
			in:   "a  \t b\n\n\n\nc\r\nd",
			want: "a b\n\nc\nd",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in, tc.final); got != tc.want {
				t.Fatalf("Clean(%q, %v) = %q, want %q", tc.in, tc.final, got, tc.want)
			}
		})
	}
}

func TestCleanGrowthStaysPrefix(t *testing.T) {
	full := "Intro line.\n\n```go\nfmt.Println(1)\n```\nAfter the code, more words. <cite>x</cite> End."
	prev := ""
	for i := 1; i <= len(full); i++ {
		got := Clean(full[:i], false)
		if len(got) < len(prev) || got[:len(prev)] != prev {
			t.Fatalf("Clean(full[:%d]) = %q does not extend %q", i, got, prev)
		}
		prev = got
	}
}
