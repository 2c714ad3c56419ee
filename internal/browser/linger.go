package browser

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

// Linger keeps the browser window up for d after a run so the result can be
// inspected. The first interrupt extends the wait to extension; a second
// interrupt, or ctx ending, returns immediately. It reports whether the wait
// was extended.
func Linger(ctx context.Context, d, extension time.Duration, interrupts <-chan os.Signal, logger *zap.Logger) bool {
	if d <= 0 {
		return false
	}
	logger.Info("Browser will close shortly. Press Ctrl+C to keep it open longer.", zap.Duration("in", d))

	timer := time.NewTimer(d)
	defer timer.Stop()

	extended := false
	for {
		select {
		case <-timer.C:
			return extended
		case <-ctx.Done():
			return extended
		case <-interrupts:
			if extended || extension <= 0 {
				logger.Info("Closing browser now.")
				return extended
			}
			extended = true
			timer.Reset(extension)
			logger.Info("Keeping browser open. Press Ctrl+C again to close.", zap.Duration("for", extension))
		}
	}
}
