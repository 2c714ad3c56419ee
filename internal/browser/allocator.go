package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/mailpilot/internal/config"
)

// launchFlag is one Chrome command line switch. A bool value of true
// renders as a bare switch.
type launchFlag struct {
	Name  string
	Value interface{}
}

// baseFlags keep a persistent profile usable by automation without
// advertising it.
var baseFlags = []launchFlag{
	{"no-first-run", true},
	{"no-default-browser-check", true},
	{"disable-blink-features", "AutomationControlled"},
	{"disable-infobars", true},
	{"disable-dev-shm-usage", true},
	{"disable-background-networking", true},
	{"disable-popup-blocking", true},
	{"password-store", "basic"},
	{"use-mock-keychain", true},
}

// launchFlags resolves the switches for one provider profile. Later entries
// win, so user supplied args can override the defaults.
func launchFlags(cfg config.BrowserConfig, profileDir string) []launchFlag {
	flags := make([]launchFlag, 0, len(baseFlags)+len(cfg.Args)+6)
	flags = append(flags, baseFlags...)

	if cfg.Headless {
		flags = append(flags, launchFlag{"headless", true}, launchFlag{"hide-scrollbars", true}, launchFlag{"mute-audio", true})
	}
	if profileDir != "" {
		flags = append(flags, launchFlag{"user-data-dir", profileDir})
	}
	if cfg.UserAgent != "" {
		flags = append(flags, launchFlag{"user-agent", cfg.UserAgent})
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags = append(flags, launchFlag{"window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)})
	}

	// Extra args accept both "--flag" and "--flag=value".
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, launchFlag{key, value})
		} else {
			flags = append(flags, launchFlag{key, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for one
// provider profile. chromedp.DefaultExecAllocatorOptions is not used because
// it forces headless mode and enables automation banners.
func DefaultAllocatorOptions(cfg config.BrowserConfig, profileDir string) []chromedp.ExecAllocatorOption {
	flags := launchFlags(cfg, profileDir)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+1)
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
