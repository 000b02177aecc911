package denylist

import (
	"fmt"
	"testing"
)

func BenchmarkDecide_NoMatch(b *testing.B) {
	dl := NewDefault()
	cmd := "echo hello"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dl.Decide(&cmd)
	}
}

func BenchmarkDecide_Match(b *testing.B) {
	dl := NewDefault()
	cmd := "rm -rf /data"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dl.Decide(&cmd)
	}
}

func BenchmarkDecide_LargeDenylist(b *testing.B) {
	p := Patterns{Commands: append([]string{}, DefaultPatterns.Commands...)}
	for i := 0; i < 1000; i++ {
		p.Commands = append(p.Commands, fmt.Sprintf("blocked-tool-%d", i))
	}
	dl := New(p)
	cmd := "echo hello"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dl.Decide(&cmd)
	}
}
