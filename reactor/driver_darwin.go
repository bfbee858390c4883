//go:build darwin

package reactor

// New builds the platform-default Reactor (kqueue on Darwin/BSD).
func New() (Reactor, error) {
	return NewKqueue()
}
