package fragment

import "testing"

func TestParseSequence(t *testing.T) {
	cases := []struct {
		name string
		want int64
		ok   bool
	}{
		{"chunk_001.wav", 1, true},
		{"001.wav", 1, true},
		{"rec_2025_045.wav", 45, true},
		{"chunk7b.wav", 7, true},
		{"meeting-0042.WAV", 42, true},
		{"/some/dir/fragment_12.wav", 12, true},
		{"no_digits.wav", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, err := ParseSequence(tc.name)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseSequence(%q): unexpected error: %v", tc.name, err)
				continue
			}
			if got != tc.want {
				t.Errorf("ParseSequence(%q) = %d, want %d", tc.name, got, tc.want)
			}
		} else if err == nil {
			t.Errorf("ParseSequence(%q): expected error, got %d", tc.name, got)
		}
	}
}

func TestNew(t *testing.T) {
	f, err := New("/in/chunk_003.wav")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Seq != 3 {
		t.Errorf("Seq = %d, want 3", f.Seq)
	}
	if f.Name != "chunk_003.wav" {
		t.Errorf("Name = %q, want chunk_003.wav", f.Name)
	}
	if f.Status != StatusPending {
		t.Errorf("Status = %q, want pending", f.Status)
	}
	if f.ArrivedAt.IsZero() {
		t.Error("ArrivedAt not set")
	}
}

func TestNewRejectsUnparsableName(t *testing.T) {
	if _, err := New("/in/readme.wav"); err == nil {
		t.Fatal("expected error for name without digits")
	}
}
