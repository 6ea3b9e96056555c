package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// sniffLen is the number of header bytes filetype needs to identify a format
const sniffLen = 261

// Step is a pluggable processing unit. It consumes a staged local input
// file and produces a local output file in the same scratch directory,
// touching nothing outside the filesystem: deterministic, no network.
type Step interface {
	Run(ctx context.Context, inputPath string) (string, error)
}

// BlurStep smooths the input with a fixed-spread Gaussian kernel and writes
// the result next to the input, preserving the format where the extension
// allows and falling back to JPEG otherwise.
type BlurStep struct {
	sigma  float64
	logger *slog.Logger
}

// NewBlurStep creates a blur step with the given Gaussian sigma
func NewBlurStep(sigma float64, logger *slog.Logger) *BlurStep {
	return &BlurStep{sigma: sigma, logger: logger}
}

// Run implements Step
func (s *BlurStep) Run(ctx context.Context, inputPath string) (string, error) {
	if err := checkRasterInput(inputPath); err != nil {
		return "", err
	}

	img, err := imaging.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode %q: %s", domain.ErrProcessing, filepath.Base(inputPath), err.Error())
	}

	blurred := imaging.Blur(img, s.sigma)

	outPath := derivedPath(inputPath)
	if err := imaging.Save(blurred, outPath); err != nil {
		return "", fmt.Errorf("%w: failed to encode result: %s", domain.ErrProcessing, err.Error())
	}

	s.logger.Info("Blur applied",
		slog.String("input", filepath.Base(inputPath)),
		slog.Float64("sigma", s.sigma),
	)

	return outPath, nil
}

// InferenceStep segments the input with a model staged by the asset
// fetcher. The model is loaded once per worker process, never per job.
type InferenceStep struct {
	model  *Model
	logger *slog.Logger
}

// NewInferenceStep creates an inference step around a loaded model
func NewInferenceStep(model *Model, logger *slog.Logger) *InferenceStep {
	return &InferenceStep{model: model, logger: logger}
}

// Run implements Step. The derived mask keeps the input's spatial
// dimensions.
func (s *InferenceStep) Run(ctx context.Context, inputPath string) (string, error) {
	if err := checkRasterInput(inputPath); err != nil {
		return "", err
	}

	img, err := imaging.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode %q: %s", domain.ErrProcessing, filepath.Base(inputPath), err.Error())
	}

	mask := s.model.Predict(img)

	outPath := derivedPath(inputPath)
	if err := imaging.Save(mask, outPath); err != nil {
		return "", fmt.Errorf("%w: failed to encode result: %s", domain.ErrProcessing, err.Error())
	}

	s.logger.Info("Inference applied",
		slog.String("input", filepath.Base(inputPath)),
		slog.String("model", s.model.Name),
	)

	return outPath, nil
}

// checkRasterInput sniffs the file header and rejects anything that is not
// a raster image before handing it to a decoder
func checkRasterInput(inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("%w: failed to open input: %s", domain.ErrProcessing, err.Error())
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: failed to read input header: %s", domain.ErrProcessing, err.Error())
	}

	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("%w: %q is not a supported raster image", domain.ErrProcessing, filepath.Base(inputPath))
	}

	return nil
}

// derivedPath places the output next to the input, keeping the extension
// when the encoder supports it and appending .jpg when it does not
func derivedPath(inputPath string) string {
	outPath := filepath.Join(filepath.Dir(inputPath), "derived-"+filepath.Base(inputPath))
	if _, err := imaging.FormatFromFilename(outPath); err != nil {
		outPath += ".jpg"
	}
	return outPath
}
