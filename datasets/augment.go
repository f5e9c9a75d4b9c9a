package datasets

import "math/rand"

// cropFlipAugment returns the standard image augmentation: zero-pad by pad
// pixels, take a random crop back to the original size, and flip
// horizontally with probability one half. Examples are flattened CHW.
func cropFlipAugment(channels, height, width, pad int, rng *rand.Rand) AugmentFunc {
	plane := height * width

	return func(example []float64) {
		dy := rng.Intn(2*pad+1) - pad
		dx := rng.Intn(2*pad+1) - pad
		flip := rng.Intn(2) == 1

		src := make([]float64, len(example))
		copy(src, example)

		for c := 0; c < channels; c++ {
			base := c * plane
			for y := 0; y < height; y++ {
				sy := y + dy
				for x := 0; x < width; x++ {
					sx := x + dx
					if flip {
						sx = (width - 1 - x) + dx
					}
					if sy < 0 || sy >= height || sx < 0 || sx >= width {
						example[base+y*width+x] = 0
						continue
					}
					example[base+y*width+x] = src[base+sy*width+sx]
				}
			}
		}
	}
}
