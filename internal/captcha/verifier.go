// internal/captcha/verifier.go
package captcha

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/artifacts"
	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/ocr"
)

// MatchFunc decides whether recognized text confirms a target number.
type MatchFunc func(recognized, target string) bool

// ExactSubstring is the default MatchFunc: the target digits must appear in
// the recognized text verbatim. An empty target never matches.
func ExactSubstring(recognized, target string) bool {
	return target != "" && strings.Contains(recognized, target)
}

// Verifier cross-checks oracle-proposed coordinates against the challenge
// raster with local recognition. Only candidates whose crop actually shows
// the target number survive; a wrong oracle answer dies here instead of
// producing a rejected submission.
type Verifier struct {
	recognizer ocr.Engine
	sink       *artifacts.Sink
	logger     *zap.Logger

	cropRadius int
	threshold  uint8
	upscale    int
	language   string
	dpi        int
	whitelist  string

	// Matcher overrides the retain decision. Nil means ExactSubstring;
	// fuzzy comparison plugs in here without touching the pipeline.
	Matcher MatchFunc
}

// NewVerifier builds a Verifier from configuration. A nil recognizer falls
// back to the registered default engine.
func NewVerifier(cfg *config.Config, recognizer ocr.Engine, sink *artifacts.Sink, logger *zap.Logger) *Verifier {
	if recognizer == nil {
		recognizer = ocr.DefaultEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		recognizer: recognizer,
		sink:       sink,
		logger:     logger.Named("verifier"),
		cropRadius: cfg.Solver.CropRadius,
		threshold:  uint8(cfg.OCR.BinarizeThreshold),
		upscale:    cfg.OCR.UpscaleFactor,
		language:   cfg.OCR.Language,
		dpi:        cfg.OCR.DPI,
		whitelist:  cfg.OCR.Whitelist,
	}
}

// Verify checks every candidate against the challenge image and returns the
// ones whose crop recognizably contains target, in candidate order. A
// recognition failure on one candidate never aborts the others; an
// undecodable image retains nothing.
func (v *Verifier) Verify(ctx context.Context, candidates schemas.SolutionSet, img schemas.ChallengeImage, target string) []schemas.VerifiedCoordinate {
	if len(candidates) == 0 {
		return nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.PNG))
	if err != nil {
		v.logger.Error("Challenge image is not decodable, retaining no candidates", zap.Error(err))
		return nil
	}

	verified := make([]schemas.VerifiedCoordinate, 0, len(candidates))
	for i, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		if vc, ok := v.verifyOne(ctx, src, i, cand.Point, target); ok {
			verified = append(verified, vc)
		}
	}

	v.logger.Info("Candidate verification finished",
		zap.String("target", target),
		zap.Int("candidates", len(candidates)),
		zap.Int("verified", len(verified)),
	)
	return verified
}

// verifyOne crops, preprocesses and recognizes a single candidate window.
func (v *Verifier) verifyOne(ctx context.Context, src image.Image, idx int, pt schemas.ImagePoint, target string) (schemas.VerifiedCoordinate, bool) {
	crop, ok := cropAround(src, pt, v.cropRadius)
	if !ok {
		v.logger.Warn("Candidate lies outside the captured image",
			zap.Int("candidate", idx),
			zap.String("point", pt.String()),
		)
		return schemas.VerifiedCoordinate{}, false
	}

	prepared := ocr.Upscale(ocr.Binarize(ocr.Grayscale(crop), v.threshold), v.upscale)

	var buf bytes.Buffer
	if err := png.Encode(&buf, prepared); err != nil {
		v.logger.Warn("Could not encode candidate crop",
			zap.Int("candidate", idx),
			zap.Error(err),
		)
		return schemas.VerifiedCoordinate{}, false
	}
	v.sink.SaveCrop(idx, buf.Bytes())

	input := ocr.NewInput(buf.Bytes(),
		ocr.WithLanguages(v.language),
		ocr.WithDPI(v.dpi),
		ocr.WithWhitelist(v.whitelist),
	)
	res, err := v.recognizer.Recognize(ctx, input)
	if err != nil {
		v.logger.Warn("Recognition failed for candidate",
			zap.Int("candidate", idx),
			zap.String("point", pt.String()),
			zap.Error(err),
		)
		return schemas.VerifiedCoordinate{}, false
	}

	if !v.matcher()(res.PlainText, target) {
		v.logger.Debug("Candidate rejected by recognition",
			zap.Int("candidate", idx),
			zap.String("point", pt.String()),
			zap.String("recognized", res.PlainText),
			zap.String("target", target),
		)
		return schemas.VerifiedCoordinate{}, false
	}

	v.logger.Debug("Candidate confirmed",
		zap.Int("candidate", idx),
		zap.String("point", pt.String()),
		zap.String("recognized", res.PlainText),
		zap.Float64("confidence", res.Confidence),
	)
	return schemas.VerifiedCoordinate{
		Point:          pt,
		RecognizedText: res.PlainText,
		Confidence:     res.Confidence,
	}, true
}

func (v *Verifier) matcher() MatchFunc {
	if v.Matcher != nil {
		return v.Matcher
	}
	return ExactSubstring
}

// cropAround extracts a square window of the given radius centered on pt,
// clamped to the image bounds. Returns false when the window misses the
// image entirely.
func cropAround(src image.Image, pt schemas.ImagePoint, radius int) (image.Image, bool) {
	window := image.Rect(pt.X-radius, pt.Y-radius, pt.X+radius, pt.Y+radius)
	window = window.Intersect(src.Bounds())
	if window.Empty() {
		return nil, false
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := src.(subImager); ok {
		return si.SubImage(window), true
	}

	dst := image.NewRGBA(image.Rect(0, 0, window.Dx(), window.Dy()))
	draw.Draw(dst, dst.Bounds(), src, window.Min, draw.Src)
	return dst, true
}
