package captcha

import (
	"context"
	"sync"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// stubDriver is a scriptable BrowserDriver for exercising the attempt flow
// without a browser. Behavior hooks default to benign no-ops; tests override
// only what a scenario needs. All recordings are mutex-guarded so a test can
// inspect them after concurrent use.
type stubDriver struct {
	mu sync.Mutex

	events      []string
	clicks      []schemas.ViewportPoint
	paths       [][]schemas.PathStep
	setValues   map[string]string
	navigations []string

	findFn       func(selectors []string) (*schemas.Element, error)
	readTextFn   func(el *schemas.Element) (string, error)
	screenshotFn func(region *schemas.CaptureRegion) ([]byte, schemas.CaptureRegion, error)
	alertFn      func() (string, bool, error)
	metricsFn    func() (schemas.ViewportMetrics, error)
	urlFn        func() (string, error)
	clickErr     error
	moveErr      error
}

func newStubDriver() *stubDriver {
	return &stubDriver{setValues: make(map[string]string)}
}

func (d *stubDriver) record(event string) {
	d.events = append(d.events, event)
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	d.record("navigate")
	return nil
}

func (d *stubDriver) Find(ctx context.Context, selectors []string) (*schemas.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("find")
	if d.findFn == nil {
		return nil, nil
	}
	return d.findFn(selectors)
}

func (d *stubDriver) ReadText(ctx context.Context, el *schemas.Element) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("read_text")
	if d.readTextFn == nil {
		return "", nil
	}
	return d.readTextFn(el)
}

func (d *stubDriver) Screenshot(ctx context.Context, region *schemas.CaptureRegion) ([]byte, schemas.CaptureRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("screenshot")
	if d.screenshotFn == nil {
		out := schemas.CaptureRegion{Width: 1, Height: 1, FullPage: region == nil}
		if region != nil {
			out = *region
		}
		return []byte{0x89, 0x50, 0x4e, 0x47}, out, nil
	}
	return d.screenshotFn(region)
}

func (d *stubDriver) DispatchClick(ctx context.Context, pt schemas.ViewportPoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("click")
	if d.clickErr != nil {
		return d.clickErr
	}
	d.clicks = append(d.clicks, pt)
	return nil
}

func (d *stubDriver) MoveCursor(ctx context.Context, path []schemas.PathStep) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("move")
	if d.moveErr != nil {
		return d.moveErr
	}
	d.paths = append(d.paths, path)
	return nil
}

func (d *stubDriver) SetValue(ctx context.Context, selectors []string, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("set_value")
	if len(selectors) > 0 {
		d.setValues[selectors[0]] = value
	}
	return nil
}

func (d *stubDriver) AcceptAlert(ctx context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("accept_alert")
	if d.alertFn == nil {
		return "", false, nil
	}
	return d.alertFn()
}

func (d *stubDriver) Metrics(ctx context.Context) (schemas.ViewportMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("metrics")
	if d.metricsFn == nil {
		return schemas.ViewportMetrics{Scale: 1}, nil
	}
	return d.metricsFn()
}

func (d *stubDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("current_url")
	if d.urlFn == nil {
		return "https://site.test/login", nil
	}
	return d.urlFn()
}

// snapshot returns copies of the recorded interactions.
func (d *stubDriver) snapshot() (events []string, clicks []schemas.ViewportPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...), append([]schemas.ViewportPoint(nil), d.clicks...)
}
