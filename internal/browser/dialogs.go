package browser

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// watchDialogs auto-accepts javascript dialogs and buffers their text. CDP
// suspends the renderer until a dialog is handled, so leaving one open would
// hang every later operation; acceptance is therefore immediate and the
// engine inspects the buffered text afterwards through AcceptAlert.
func (d *Driver) watchDialogs() {
	chromedp.ListenTarget(d.browserCtx, func(ev interface{}) {
		dialog, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}

		d.bufferDialog(dialog.Message)
		d.logger.Debug("Auto-accepting javascript dialog.",
			zap.String("type", string(dialog.Type)),
			zap.String("message", dialog.Message),
		)

		// Handling must happen off the listener goroutine or the CDP message
		// pump deadlocks.
		go func() {
			if err := chromedp.Run(d.browserCtx, page.HandleJavaScriptDialog(true)); err != nil && d.browserCtx.Err() == nil {
				d.logger.Warn("Could not dismiss javascript dialog.", zap.Error(err))
			}
		}()
	})
}

func (d *Driver) bufferDialog(text string) {
	d.dialogMu.Lock()
	d.dialogs = append(d.dialogs, text)
	d.dialogMu.Unlock()
}

// AcceptAlert consumes the oldest pending dialog text. The dialog itself was
// already accepted at arrival; this drains the record of it.
func (d *Driver) AcceptAlert(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	d.dialogMu.Lock()
	defer d.dialogMu.Unlock()
	if len(d.dialogs) == 0 {
		return "", false, nil
	}
	text := d.dialogs[0]
	d.dialogs = d.dialogs[1:]
	return text, true, nil
}
