package orchestrator

import (
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// OpenBrowser asks the desktop to open url. It does not wait for the browser.
func OpenBrowser(url string) error {
	var argv []string
	switch runtime.GOOS {
	case "darwin":
		argv = []string{"open", url}
	case "windows":
		argv = []string{"rundll32", "url.dll,FileProtocolHandler", url}
	default:
		argv = []string{"xdg-open", url}
	}
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "open %s", url)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
