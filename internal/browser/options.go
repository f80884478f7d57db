package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/krylovex/gridpick-cli/internal/config"
)

// allocatorOptions translates the browser config into chromedp allocator
// options. The chromedp defaults already run headless; headful mode is an
// explicit override because the default flag map carries headless=true.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened hosts where the kernel sandbox is unavailable.
		chromedp.NoSandbox,
		// Containers routinely mount a tiny /dev/shm.
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}

	for _, arg := range cfg.Args {
		key, value := parseArg(arg)
		opts = append(opts, chromedp.Flag(key, value))
	}
	return opts
}

// parseArg normalizes one config-file browser argument into a flag name and
// value. chromedp prepends the dashes itself, so any leading "--" is
// stripped; bare arguments become boolean flags.
func parseArg(arg string) (string, interface{}) {
	arg = strings.TrimPrefix(arg, "--")
	if !strings.Contains(arg, "=") {
		return arg, true
	}
	parts := strings.SplitN(arg, "=", 2)
	return parts[0], parts[1]
}
