package hasher

import (
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// DHash computes a 64-bit difference hash: the image is reduced to a 9x8
// grayscale thumbnail and each bit records whether a pixel is brighter than
// its right-hand neighbour.
func DHash(img image.Image) uint64 {
	small := imaging.Resize(imaging.Grayscale(img), 9, 8, imaging.Lanczos)
	var hash uint64
	for y := 0; y < 8; y++ {
		row := y * small.Stride
		for x := 0; x < 8; x++ {
			left := small.Pix[row+x*4]
			right := small.Pix[row+(x+1)*4]
			hash <<= 1
			if left > right {
				hash |= 1
			}
		}
	}
	return hash
}

// Distance is the Hamming distance between two perceptual hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity expresses two perceptual hashes as a percentage in [0, 100].
func Similarity(a, b uint64) float64 {
	return float64(64-Distance(a, b)) / 64 * 100
}
