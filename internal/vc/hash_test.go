package vc_test

import (
	"testing"

	"vc-go/internal/vc"
)

func TestHashContent(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		got := vc.HashContent([]byte("hello world"))
		want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
		if got != want {
			t.Errorf("HashContent() = %s, want %s", got, want)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		got := vc.HashContent(nil)
		want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
		if got != want {
			t.Errorf("HashContent(nil) = %s, want %s", got, want)
		}
		if vc.HashContent([]byte{}) != got {
			t.Error("HashContent() differs between nil and empty slice")
		}
	})

	t.Run("stable per input", func(t *testing.T) {
		a := vc.HashContent([]byte("<definitions/>"))
		b := vc.HashContent([]byte("<definitions/>"))
		c := vc.HashContent([]byte("<definitions></definitions>"))
		if a != b {
			t.Errorf("identical content digests differ: %s vs %s", a, b)
		}
		if a == c {
			t.Error("different content produced the same digest")
		}
		if len(a) != 64 {
			t.Errorf("digest length = %d, want 64", len(a))
		}
	})
}
