// Command echoserver drives a stream listener end to end: accept a
// connection, echo back whatever it sends, and shut down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	asyncsock "github.com/joeycumines/go-asyncsock"
	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/logging"
	"github.com/joeycumines/go-asyncsock/socket"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9443", "listen address")
	workers := flag.Int("workers", 0, "worker count (0 = GOMAXPROCS)")
	flag.Parse()

	logger := logiface.New[*logging.Event](
		stumpy.WithStumpy(stumpy.WithWriter(os.Stdout)),
		logiface.WithLevel[*logging.Event](logiface.LevelInformational),
	)
	logging.SetLogger(logger)

	host, portStr, err := net.SplitHostPort(*addr)
	if err != nil {
		logger.Err().Err(err).Log("invalid -addr")
		os.Exit(1)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	port, err := parsePort(portStr)
	if err != nil {
		logger.Err().Err(err).Log("invalid port")
		os.Exit(1)
	}

	engine, err := asyncsock.New(*workers)
	if err != nil {
		logger.Err().Err(err).Log("engine init failed")
		os.Exit(1)
	}
	defer engine.Close()

	ln, err := engine.Listen(endpoint.IP(ip, uint16(port)), endpoint.TCPIPv4, 128)
	if err != nil {
		logger.Err().Err(err).Log("listen failed")
		os.Exit(1)
	}
	logger.Info().Str("addr", *addr).Log("echoserver listening")

	acceptLoop(ln, engine, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Log("shutting down")
	_ = ln.Detach()
}

// acceptLoop re-arms Accept after every successful accept; the loop ends at
// the first accept error, including the Cancelled error a detach delivers.
func acceptLoop(ln *socket.ListenerSocket, engine *asyncsock.Engine, logger *logging.Logger) {
	var handle func(fd int, transport endpoint.Transport, peer endpoint.Endpoint, err error)
	handle = func(fd int, transport endpoint.Transport, peer endpoint.Endpoint, err error) {
		if err != nil {
			if errkind.Of(err) != errkind.Cancelled {
				logger.Err().Err(err).Log("accept failed")
			}
			return
		}
		logger.Info().Str("peer", peer.String()).Log("accepted connection")
		conn, err := engine.AdoptStream(fd, transport)
		if err != nil {
			logger.Err().Err(err).Log("adopt failed")
			_ = syscall.Close(fd)
		} else {
			echoConnection(conn, logger)
		}
		ln.Accept(handle)
	}
	ln.Accept(handle)
}

// echoConnection wires one connection's Receive completions back into Send,
// re-arming Receive after every successful echo until the peer disconnects
// or a terminal error occurs.
func echoConnection(conn *socket.StreamSocket, logger *logging.Logger) {
	var onData func(data []byte, err error)
	onData = func(data []byte, err error) {
		if err != nil {
			if errkind.Of(err) != errkind.EOF {
				logger.Err().Err(err).Log("receive failed")
			}
			_ = conn.Detach()
			return
		}
		conn.Send(data, func(err error) {
			if err != nil {
				logger.Err().Err(err).Log("send failed")
				_ = conn.Detach()
				return
			}
			conn.Receive(1, 0, onData)
		})
	}
	conn.Receive(1, 0, onData)
}

func parsePort(s string) (int, error) {
	v := 0
	if s == "" {
		return 0, errkind.New(errkind.Invalid, "empty port")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errkind.New(errkind.Invalid, "not a port")
		}
		v = v*10 + int(c-'0')
	}
	return v, nil
}
