//go:build linux

package reactor

// New builds the platform-default Reactor (epoll on Linux).
func New() (Reactor, error) {
	return NewEpoll()
}
