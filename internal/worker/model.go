package worker

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// modelConfigFile describes the model inside its asset folder
const modelConfigFile = "config.json"

// Model is a segmentation model staged into a local asset folder. Loading
// is expensive relative to a single job, so the worker loads it once at
// startup and shares it across jobs.
type Model struct {
	Name      string `json:"name"`
	Threshold uint8  `json:"threshold"`
}

// LoadModel verifies that every manifest entry is present under dir and
// parses the model configuration. A missing entry is a hard precondition
// failure; the step never runs on a partial asset set.
func LoadModel(dir string, manifest []string) (*Model, error) {
	for _, entry := range manifest {
		path := filepath.Join(dir, filepath.FromSlash(entry))
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %q: %s", domain.ErrAssetUnavailable, entry, err.Error())
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, modelConfigFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", domain.ErrAssetUnavailable, modelConfigFile, err.Error())
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	if model.Threshold == 0 {
		return nil, fmt.Errorf("model config has no threshold")
	}

	return &model, nil
}

// Predict derives a binary mask with the input's spatial dimensions:
// voxels whose luminance reaches the threshold are foreground
func (m *Model) Predict(img image.Image) *image.Gray {
	bounds := img.Bounds()
	mask := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma, 16-bit channels scaled back to 8-bit
			luma := (299*r + 587*g + 114*b) / 1000 >> 8
			if uint8(luma) >= m.Threshold {
				mask.Pix[mask.PixOffset(x, y)] = 0xff
			}
		}
	}

	return mask
}
