package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Preprocessor transforms a page raster before local OCR.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// PreprocessFunc adapts a plain function to Preprocessor.
type PreprocessFunc func(image.Image) (image.Image, error)

func (f PreprocessFunc) Process(img image.Image) (image.Image, error) { return f(img) }

// Grayscale drops color information.
func Grayscale() Preprocessor {
	return PreprocessFunc(func(img image.Image) (image.Image, error) {
		return imaging.Grayscale(img), nil
	})
}

// Denoise applies a gaussian blur of the given sigma.
func Denoise(sigma float64) Preprocessor {
	return PreprocessFunc(func(img image.Image) (image.Image, error) {
		return imaging.Blur(img, sigma), nil
	})
}

// Contrast adjusts contrast by percentage in [-100, 100].
func Contrast(percentage float64) Preprocessor {
	return PreprocessFunc(func(img image.Image) (image.Image, error) {
		return imaging.AdjustContrast(img, percentage), nil
	})
}

// Sharpen applies an unsharp mask of the given sigma.
func Sharpen(sigma float64) Preprocessor {
	return PreprocessFunc(func(img image.Image) (image.Image, error) {
		return imaging.Sharpen(img, sigma), nil
	})
}

// AdaptiveThreshold binarizes against the mean of a blockSize window,
// computed from an integral image.
func AdaptiveThreshold(blockSize int, constant float64) Preprocessor {
	return PreprocessFunc(func(img image.Image) (image.Image, error) {
		if blockSize < 3 {
			return nil, fmt.Errorf("block size must be at least 3, got %d", blockSize)
		}
		gray := imaging.Grayscale(img)
		b := gray.Bounds()
		w, h := b.Dx(), b.Dy()

		// integral[(y+1)*(w+1)+(x+1)] is the sum over [0,x]x[0,y]
		integral := make([]int64, (w+1)*(h+1))
		for y := 0; y < h; y++ {
			var row int64
			for x := 0; x < w; x++ {
				row += int64(gray.Pix[y*gray.Stride+x*4])
				integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + row
			}
		}

		out := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
		half := blockSize / 2
		for y := 0; y < h; y++ {
			y0, y1 := max(0, y-half), min(h-1, y+half)
			for x := 0; x < w; x++ {
				x0, x1 := max(0, x-half), min(w-1, x+half)
				sum := integral[(y1+1)*(w+1)+(x1+1)] - integral[y0*(w+1)+(x1+1)] -
					integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
				count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
				mean := float64(sum) / float64(count)
				if float64(gray.Pix[y*gray.Stride+x*4]) < mean-constant {
					out.SetGray(x, y, color.Gray{Y: 0})
				}
			}
		}
		return out, nil
	})
}

// DefaultPreprocessors is the pipeline used ahead of Tesseract.
func DefaultPreprocessors() []Preprocessor {
	return []Preprocessor{
		Grayscale(),
		Denoise(0.5),
		Contrast(20),
		Sharpen(0.5),
	}
}

// Preprocess runs img through each step in order.
func Preprocess(img image.Image, steps []Preprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	result := img
	for i, step := range steps {
		next, err := step.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing step %d failed: %w", i, err)
		}
		if next == nil {
			return nil, fmt.Errorf("preprocessing step %d returned nil image", i)
		}
		result = next
	}
	return result, nil
}
