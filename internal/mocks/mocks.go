// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/ocr"
)

// -- Browser Driver Mock --

// MockBrowserDriver implements schemas.BrowserDriver for tests that exercise
// components above the browser layer.
type MockBrowserDriver struct {
	mock.Mock
}

var _ schemas.BrowserDriver = (*MockBrowserDriver)(nil)

func (m *MockBrowserDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowserDriver) Find(ctx context.Context, selectors []string) (*schemas.Element, error) {
	args := m.Called(ctx, selectors)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Element), args.Error(1)
}

func (m *MockBrowserDriver) ReadText(ctx context.Context, el *schemas.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserDriver) Screenshot(ctx context.Context, region *schemas.CaptureRegion) ([]byte, schemas.CaptureRegion, error) {
	args := m.Called(ctx, region)
	var buf []byte
	if args.Get(0) != nil {
		buf = args.Get(0).([]byte)
	}
	return buf, args.Get(1).(schemas.CaptureRegion), args.Error(2)
}

func (m *MockBrowserDriver) DispatchClick(ctx context.Context, pt schemas.ViewportPoint) error {
	return m.Called(ctx, pt).Error(0)
}

func (m *MockBrowserDriver) MoveCursor(ctx context.Context, path []schemas.PathStep) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockBrowserDriver) SetValue(ctx context.Context, selectors []string, value string) error {
	return m.Called(ctx, selectors, value).Error(0)
}

func (m *MockBrowserDriver) AcceptAlert(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockBrowserDriver) Metrics(ctx context.Context) (schemas.ViewportMetrics, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.ViewportMetrics), args.Error(1)
}

func (m *MockBrowserDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- Solver Mock --

// MockSolver stands in for the oracle client in engine-level tests.
type MockSolver struct {
	mock.Mock
}

func (m *MockSolver) Solve(ctx context.Context, img schemas.ChallengeImage, instruction string) (schemas.SolutionSet, error) {
	args := m.Called(ctx, img, instruction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.SolutionSet), args.Error(1)
}

// -- OCR Engine Mock --

// MockRecognizer implements ocr.Engine with scripted answers.
type MockRecognizer struct {
	mock.Mock
}

var _ ocr.Engine = (*MockRecognizer)(nil)

func (m *MockRecognizer) Name() string {
	return m.Called().String(0)
}

func (m *MockRecognizer) Recognize(ctx context.Context, input ocr.Input) (ocr.Result, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(ocr.Result), args.Error(1)
}
