package media_test

import (
	"image"
	"image/color"
	"testing"

	"telecine/internal/media"
)

func gradientImage(w, h int, step uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x) * step})
		}
	}
	return img
}

func TestDHashDeterministic(t *testing.T) {
	img := gradientImage(64, 64, 3)
	if media.DHash(img) != media.DHash(img) {
		t.Fatal("hash differs across runs for the same image")
	}
}

func TestDHashDistinguishesGradientDirection(t *testing.T) {
	ltr := media.DHash(gradientImage(64, 64, 3))

	flipped := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			flipped.SetGray(x, y, color.Gray{Y: uint8(63-x) * 3})
		}
	}
	rtl := media.DHash(flipped)

	if media.HammingDistance(ltr, rtl) < 32 {
		t.Fatalf("opposite gradients too close: distance %d", media.HammingDistance(ltr, rtl))
	}
}

func TestHammingDistance(t *testing.T) {
	if d := media.HammingDistance(0, 0); d != 0 {
		t.Fatalf("identical hashes: distance %d", d)
	}
	if d := media.HammingDistance(0, ^uint64(0)); d != 64 {
		t.Fatalf("inverse hashes: distance %d", d)
	}
	if d := media.HammingDistance(0b1010, 0b0110); d != 2 {
		t.Fatalf("expected distance 2, got %d", d)
	}
}

func TestHashSimilarity(t *testing.T) {
	a := []uint64{0xdeadbeefcafef00d, 0x1111222233334444}
	if sim := media.HashSimilarity(a, a); sim != 1 {
		t.Fatalf("self similarity %v", sim)
	}
	if sim := media.HashSimilarity(a, nil); sim != 0 {
		t.Fatalf("empty candidate similarity %v", sim)
	}
	b := []uint64{a[0] ^ 0xf, a[1]}
	want := 1 - 4.0/128.0
	if sim := media.HashSimilarity(a, b); sim != want {
		t.Fatalf("similarity %v, want %v", sim, want)
	}
}

func TestParseHashesRoundTrip(t *testing.T) {
	hashes := []uint64{0, 0xdeadbeefcafef00d, ^uint64(0)}
	parsed, err := media.ParseHashes(media.FormatHashes(hashes))
	if err != nil {
		t.Fatalf("ParseHashes failed: %v", err)
	}
	if len(parsed) != len(hashes) {
		t.Fatalf("length mismatch: %d", len(parsed))
	}
	for i := range hashes {
		if parsed[i] != hashes[i] {
			t.Fatalf("hash %d mismatch: %x != %x", i, parsed[i], hashes[i])
		}
	}
}

func TestParseHashesRejectsGarbage(t *testing.T) {
	if _, err := media.ParseHashes("zzzz"); err == nil {
		t.Fatal("expected parse error")
	}
	if hashes, err := media.ParseHashes("  "); err != nil || hashes != nil {
		t.Fatalf("blank input: %v %v", hashes, err)
	}
}
