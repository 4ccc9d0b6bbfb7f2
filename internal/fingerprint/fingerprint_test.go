package fingerprint

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{
			name:     "empty input",
			data:     nil,
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "known digest",
			data:     []byte("hello"),
			expected: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.data); got != tt.expected {
				t.Errorf("Compute() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	if Compute(data) != Compute(append([]byte(nil), data...)) {
		t.Error("identical bytes must produce identical fingerprints")
	}
	if Compute(data) == Compute(data[:4]) {
		t.Error("different bytes must not collide on trivially truncated input")
	}
}
