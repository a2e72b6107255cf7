package voice

import "testing"

func TestSelectVoice(t *testing.T) {
	tone := ToneProfile{ID: "calm", PreferredVoices: []string{"Samantha", "Fiona"}}

	cases := []struct {
		name   string
		voices []SystemVoice
		want   string
		ok     bool
	}{
		{
			name: "empty catalog",
			ok:   false,
		},
		{
			name: "remote preferred beats local preferred",
			voices: []SystemVoice{
				{Name: "Samantha", Lang: "en-US", Local: true},
				{Name: "Fiona (Enhanced)", Lang: "en-GB"},
			},
			want: "Fiona (Enhanced)",
			ok:   true,
		},
		{
			name: "preference order among remote voices",
			voices: []SystemVoice{
				{Name: "Fiona", Lang: "en-GB"},
				{Name: "Samantha", Lang: "en-US"},
			},
			want: "Samantha",
			ok:   true,
		},
		{
			name: "local preferred beats remote english",
			voices: []SystemVoice{
				{Name: "Google UK English Male", Lang: "en-GB"},
				{Name: "Samantha", Lang: "en-US", Local: true},
			},
			want: "Samantha",
			ok:   true,
		},
		{
			name: "remote english beats local english",
			voices: []SystemVoice{
				{Name: "Thomas", Lang: "fr-FR"},
				{Name: "Local English", Lang: "en-US", Local: true},
				{Name: "Remote English", Lang: "en-AU"},
			},
			want: "Remote English",
			ok:   true,
		},
		{
			name: "any english",
			voices: []SystemVoice{
				{Name: "Thomas", Lang: "fr-FR"},
				{Name: "Local English", Lang: "EN-us", Local: true},
			},
			want: "Local English",
			ok:   true,
		},
		{
			name: "first voice",
			voices: []SystemVoice{
				{Name: "Thomas", Lang: "fr-FR", Local: true},
				{Name: "Anna", Lang: "de-DE"},
			},
			want: "Thomas",
			ok:   true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SelectVoice(tone, tc.voices)
			if ok != tc.ok {
				t.Fatalf("SelectVoice() ok = %v, want %v", ok, tc.ok)
			}
			if got.Name != tc.want {
				t.Fatalf("SelectVoice() = %q, want %q", got.Name, tc.want)
			}
		})
	}
}
