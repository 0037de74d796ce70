package filename

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name      string
		filename  string
		wantErr   bool
		talkgroup int64
		radioID   int64
		unixtime  int64
	}{
		{
			name:      "well-formed",
			filename:  "20240115_143052_metro_TG52198_FROM_1234567.mp3",
			talkgroup: 52198,
			radioID:   1234567,
			unixtime:  1705329052,
		},
		{
			name:     "too few segments",
			filename: "a_b_c.mp3",
			wantErr:  true,
		},
		{
			name:      "missing talkgroup degrades to zero",
			filename:  "20240115_143052_metro_county_FROM_1234567.mp3",
			talkgroup: 0,
			radioID:   1234567,
			unixtime:  1705329052,
		},
		{
			name:      "bad date degrades unixtime to zero",
			filename:  "20241301_999999_metro_TG1_FROM_2.mp3",
			talkgroup: 1,
			radioID:   2,
			unixtime:  0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.filename)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q): expected error, got none", tc.filename)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tc.filename, err)
			}
			if got.Talkgroup != tc.talkgroup {
				t.Errorf("Talkgroup = %d, want %d", got.Talkgroup, tc.talkgroup)
			}
			if got.RadioID != tc.radioID {
				t.Errorf("RadioID = %d, want %d", got.RadioID, tc.radioID)
			}
			if got.Unixtime != tc.unixtime {
				t.Errorf("Unixtime = %d, want %d", got.Unixtime, tc.unixtime)
			}
		})
	}
}

func TestParseNonNegative(t *testing.T) {
	// P3: parsed fields are never negative regardless of input.
	inputs := []string{
		"20240115_143052_a_TG-5_FROM_-10.mp3",
		"x_y_z_w_v.wav",
	}
	for _, in := range inputs {
		got, err := Parse(in)
		if err != nil {
			continue
		}
		if got.Talkgroup < 0 || got.RadioID < 0 || got.Unixtime < 0 {
			t.Errorf("Parse(%q) produced negative field: %+v", in, got)
		}
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"normal_file.mp3", "normal_file.mp3"},
		{"has spaces.mp3", "has_spaces.mp3"},
		{"__leading_trailing__", "leading_trailing"},
		{"!!!", ""},
		{"a/b\\c:d", "a_b_c_d"},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeLongName(t *testing.T) {
	// B3: a 255-char filename composed of valid characters is preserved.
	name := make([]byte, 255)
	for i := range name {
		name[i] = 'a'
	}
	got := Sanitize(string(name))
	if len(got) != 255 {
		t.Errorf("Sanitize(255-char name) length = %d, want 255", len(got))
	}
}

func TestFormatFrequency(t *testing.T) {
	cases := []struct {
		hz   int64
		want string
	}{
		{1, "1 Hz"},
		{1_000, "1.000 kHz"},
		{1_000_000, "1.000 MHz"},
		{1_000_000_000, "1.000 GHz"},
	}
	for _, tc := range cases {
		if got := FormatFrequency(tc.hz); got != tc.want {
			t.Errorf("FormatFrequency(%d) = %q, want %q", tc.hz, got, tc.want)
		}
	}
}
