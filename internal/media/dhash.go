package media

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// dhash operates on a 9x8 grayscale reduction: 8 horizontal gradient bits per
// row, 8 rows, packed into a uint64.
const (
	dhashWidth  = 9
	dhashHeight = 8
)

// DHash computes a difference hash over the image's horizontal gradients.
// Identical and near-identical frames produce hashes within a small Hamming
// distance of each other.
func DHash(img image.Image) uint64 {
	gray := imaging.Grayscale(imaging.Resize(img, dhashWidth, dhashHeight, imaging.Lanczos))

	var hash uint64
	bit := 0
	for y := 0; y < dhashHeight; y++ {
		for x := 0; x < dhashWidth-1; x++ {
			left, _, _, _ := gray.At(x, y).RGBA()
			right, _, _, _ := gray.At(x+1, y).RGBA()
			if left < right {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// HashSimilarity scores two hash sequences in [0,1]. Sequences are compared
// position by position up to the shorter length.
func HashSimilarity(a, b []uint64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		total += HammingDistance(a[i], b[i])
	}
	maxBits := float64(n * 64)
	return 1 - float64(total)/maxBits
}

// FormatHashes serializes hashes as comma-joined hex words.
func FormatHashes(hashes []uint64) string {
	parts := make([]string, len(hashes))
	for i, h := range hashes {
		parts[i] = fmt.Sprintf("%016x", h)
	}
	return strings.Join(parts, ",")
}

// ParseHashes reverses FormatHashes.
func ParseHashes(value string) ([]uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	hashes := make([]uint64, 0, len(parts))
	for _, part := range parts {
		h, err := strconv.ParseUint(strings.TrimSpace(part), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse hash %q: %w", part, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}
