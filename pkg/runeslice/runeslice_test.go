package runeslice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCut(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		head string
		tail string
	}{
		{s: "hello", n: 2, head: "he", tail: "llo"},
		{s: "привет", n: 3, head: "при", tail: "вет"},
		{s: "abc", n: 10, head: "abc", tail: ""},
		{s: "abc", n: 0, head: "", tail: "abc"},
		{s: "", n: 3, head: "", tail: ""},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			head, tail := Cut(tt.s, tt.n)
			require.Equal(t, tt.head, head)
			require.Equal(t, tt.tail, tail)
		})
	}
}
