//go:build !unix

package daemonctl

import "log/slog"

type unsupportedDetacher struct{}

func newPlatformDetacher(*slog.Logger) Detacher {
	return unsupportedDetacher{}
}

func (unsupportedDetacher) Detach([]string) (int, error) {
	return 0, ErrUnsupported
}
