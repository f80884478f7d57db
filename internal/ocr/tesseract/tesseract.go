// Package tesseract provides the default, locally-run recognition engine
// backed by gosseract. Importing the package registers it:
//
//	import _ "github.com/krylovex/gridpick-cli/internal/ocr/tesseract"
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/krylovex/gridpick-cli/internal/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewEngine())
}

// Segmentation modes swept when the caller does not pin one. Single digits
// and short digit runs respond very differently per mode, so the engine runs
// them all and votes.
var sweepModes = []gosseract.PageSegMode{
	gosseract.PSM_SINGLE_CHAR,
	gosseract.PSM_SINGLE_BLOCK,
	gosseract.PSM_SINGLE_LINE,
	gosseract.PSM_SINGLE_WORD,
	gosseract.PSM_RAW_LINE,
}

// Engine implements ocr.Engine using the gosseract client.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// NewEngine constructs a Tesseract-backed recognition engine.
func NewEngine() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image. When the input pins a page
// segmentation mode via metadata the engine runs a single pass; otherwise it
// sweeps sweepModes and returns the most frequent non-empty reading, with
// ties broken by confidence.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if _, pinned := in.Metadata["tessedit_pageseg_mode"]; pinned {
		return e.recognizeOnce(ctx, in, nil)
	}

	votes := make(map[string]int)
	confidence := make(map[string]float64)
	var firstErr error
	passes := 0

	for _, mode := range sweepModes {
		if err := ctx.Err(); err != nil {
			return ocr.Result{}, err
		}

		mode := mode
		res, err := e.recognizeOnce(ctx, in, &mode)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		passes++

		if res.PlainText == "" {
			continue
		}
		votes[res.PlainText]++
		if res.Confidence > confidence[res.PlainText] {
			confidence[res.PlainText] = res.Confidence
		}
	}

	if len(votes) == 0 {
		// Every pass failed outright, surface the first failure. All-empty
		// readings are a valid "nothing recognized" result.
		if passes == 0 && firstErr != nil {
			return ocr.Result{}, firstErr
		}
		return ocr.Result{}, nil
	}

	best := ""
	for text := range votes {
		if best == "" {
			best = text
			continue
		}
		switch {
		case votes[text] > votes[best]:
			best = text
		case votes[text] == votes[best] && confidence[text] > confidence[best]:
			best = text
		case votes[text] == votes[best] && confidence[text] == confidence[best] && text < best:
			best = text
		}
	}

	return ocr.Result{PlainText: best, Confidence: confidence[best]}, nil
}

func (e *Engine) recognizeOnce(ctx context.Context, in ocr.Input, mode *gosseract.PageSegMode) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if mode != nil {
		if err := c.SetPageSegMode(*mode); err != nil {
			return ocr.Result{}, fmt.Errorf("set page seg mode: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}

	return ocr.Result{
		PlainText:  strings.TrimSpace(text),
		Confidence: meanWordConfidence(c),
	}, nil
}

// meanWordConfidence averages the per-word confidences of the last pass.
// Recognition output is still useful when the confidence query fails, so
// errors degrade to zero instead of propagating.
func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
