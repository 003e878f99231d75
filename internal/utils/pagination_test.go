package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	const defLimit = 20 // typical page-limit default

	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", defLimit, defLimit}, // absent query param
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", defLimit, defLimit}, // garbage falls back
		{" 42", 7, 7},             // no trimming
		{"999999999999999999999999", -1, -1}, // overflow falls back
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.in, tc.def, got, tc.want)
		}
	}
}
