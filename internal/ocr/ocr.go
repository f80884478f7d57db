// Package ocr defines the recognition provider contract used to read text
// out of challenge image crops, plus the preprocessing pipeline shared by
// every provider. Concrete engines live in subpackages and register
// themselves as the default on import.
package ocr

import (
	"context"
	"strconv"
)

// Input encapsulates a single image submitted for recognition.
type Input struct {
	// Image is the encoded PNG payload.
	Image []byte
	// Languages is a list of trained-data hints (e.g. "eng") that providers
	// can use to select models.
	Languages []string
	// DPI carries the effective dots-per-inch for the image. Providers such
	// as Tesseract use this for scaling heuristics; zero means unknown.
	DPI int
	// Metadata allows callers to pass through engine-specific knobs (e.g.
	// "tessedit_pageseg_mode") without hard-coding them into the API surface.
	Metadata map[string]string
}

// Result captures recognition output for a single input.
type Result struct {
	// PlainText contains the trimmed text extracted from the image.
	PlainText string
	// Confidence is the engine's mean confidence in [0, 1]; zero when the
	// provider reports none.
	Confidence float64
}

// Engine is the recognition provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// InputOption mutates an Input during construction.
type InputOption func(*Input)

// NewInput builds an Input for an encoded PNG with the given options applied.
func NewInput(image []byte, opts ...InputOption) Input {
	in := Input{Image: image}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// WithLanguages sets the trained-data hints.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) {
		in.Languages = langs
	}
}

// WithDPI declares the effective dots-per-inch of the image.
func WithDPI(dpi int) InputOption {
	return func(in *Input) {
		in.DPI = dpi
	}
}

// WithWhitelist restricts recognition to the provided characters. Engines
// without an equivalent knob fold it into their prompt instead.
func WithWhitelist(chars string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_char_whitelist"] = chars
	}
}

// WithPageSegMode pins Tesseract's page segmentation mode. Without it the
// Tesseract engine sweeps several modes and votes on the result.
func WithPageSegMode(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_pageseg_mode"] = strconv.Itoa(mode)
	}
}

var defaultEngine Engine = noopEngine{}

// DefaultEngine returns the registered default recognition engine.
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine sets the default recognition engine. Provider subpackages
// call this from init so a blank import is enough to activate them.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

// Noop returns an engine that recognizes nothing and never errors. It is the
// initial default so recognition-optional flows work without a provider.
func Noop() Engine {
	return noopEngine{}
}

type noopEngine struct{}

func (noopEngine) Name() string {
	return "noop"
}

func (noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{}, nil
}
