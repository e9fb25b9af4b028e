//go:build !linux && !darwin && !freebsd && !netbsd && !dragonfly

package poller

func New() (Poller, error) {
	return nil, ErrUnsupported
}
