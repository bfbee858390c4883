package option

import (
	"time"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// SocketOptionKind enumerates the per-socket options named in §6, each
// carrying a typed payload.
type SocketOptionKind int

const (
	ReuseAddress SocketOptionKind = iota
	ReusePort
	KeepAlive
	NoDelay
	Linger
	SendBufferSize
	ReceiveBufferSize
	SendLowWatermark
	ReceiveLowWatermark
	Broadcast
	BypassRouting
	InlineOutOfBand
	TxTimestamping
	RxTimestamping
	ZeroCopy
	TCPCongestionControl
)

// LingerValue is the payload for the Linger option.
type LingerValue struct {
	Enabled  bool
	Duration time.Duration
}

// SocketOption is a single option/value pair for Descriptor.SetOption /
// GetOption. Exactly one of the typed fields is meaningful, selected by
// Kind; constructors below enforce this.
type SocketOption struct {
	Kind SocketOptionKind

	Bool     bool
	Int      int
	Duration time.Duration
	Linger   LingerValue
	String   string
}

func boolOpt(k SocketOptionKind, v bool) SocketOption     { return SocketOption{Kind: k, Bool: v} }
func intOpt(k SocketOptionKind, v int) SocketOption       { return SocketOption{Kind: k, Int: v} }
func durationOpt(k SocketOptionKind, v time.Duration) SocketOption {
	return SocketOption{Kind: k, Duration: v}
}

// WithReuseAddress builds the reuse-address option.
func WithReuseAddress(enabled bool) SocketOption { return boolOpt(ReuseAddress, enabled) }

// WithReusePort builds the reuse-port option.
func WithReusePort(enabled bool) SocketOption { return boolOpt(ReusePort, enabled) }

// WithKeepAlive builds the keep-alive option.
func WithKeepAlive(enabled bool) SocketOption { return boolOpt(KeepAlive, enabled) }

// WithNoDelay builds the no-delay (Nagle-disable) option.
func WithNoDelay(enabled bool) SocketOption { return boolOpt(NoDelay, enabled) }

// WithLinger builds the linger option.
func WithLinger(enabled bool, d time.Duration) SocketOption {
	return SocketOption{Kind: Linger, Linger: LingerValue{Enabled: enabled, Duration: d}}
}

// WithSendBufferSize builds the send-buffer-size option.
func WithSendBufferSize(bytes int) SocketOption { return intOpt(SendBufferSize, bytes) }

// WithReceiveBufferSize builds the receive-buffer-size option.
func WithReceiveBufferSize(bytes int) SocketOption { return intOpt(ReceiveBufferSize, bytes) }

// WithSendLowWatermark builds the send-low-watermark option.
func WithSendLowWatermark(bytes int) SocketOption { return intOpt(SendLowWatermark, bytes) }

// WithReceiveLowWatermark builds the receive-low-watermark option.
func WithReceiveLowWatermark(bytes int) SocketOption { return intOpt(ReceiveLowWatermark, bytes) }

// WithBroadcast builds the broadcast option.
func WithBroadcast(enabled bool) SocketOption { return boolOpt(Broadcast, enabled) }

// WithBypassRouting builds the bypass-routing option.
func WithBypassRouting(enabled bool) SocketOption { return boolOpt(BypassRouting, enabled) }

// WithInlineOutOfBand builds the inline-out-of-band option.
func WithInlineOutOfBand(enabled bool) SocketOption { return boolOpt(InlineOutOfBand, enabled) }

// WithTxTimestamping builds the tx-timestamping option.
func WithTxTimestamping(enabled bool) SocketOption { return boolOpt(TxTimestamping, enabled) }

// WithRxTimestamping builds the rx-timestamping option.
func WithRxTimestamping(enabled bool) SocketOption { return boolOpt(RxTimestamping, enabled) }

// WithZeroCopy builds the zero-copy option.
func WithZeroCopy(enabled bool) SocketOption { return boolOpt(ZeroCopy, enabled) }

// WithTCPCongestionControl builds the tcp-congestion-control option,
// naming an algorithm (e.g. "cubic", "bbr").
func WithTCPCongestionControl(algorithm string) SocketOption {
	return SocketOption{Kind: TCPCongestionControl, String: algorithm}
}

// knownKinds gates GetOption/SetOption against unimplemented kinds, which
// must fail with errkind.NotImplemented rather than silently succeeding.
var knownKinds = map[SocketOptionKind]bool{
	ReuseAddress:         true,
	ReusePort:            true,
	KeepAlive:            true,
	NoDelay:              true,
	Linger:               true,
	SendBufferSize:       true,
	ReceiveBufferSize:    true,
	SendLowWatermark:     true,
	ReceiveLowWatermark:  true,
	Broadcast:            true,
	BypassRouting:        true,
	InlineOutOfBand:      true,
	TxTimestamping:       true,
	RxTimestamping:       true,
	ZeroCopy:             true,
	TCPCongestionControl: true,
}

// Validate returns errkind.NotImplemented if kind is not one of the
// enumerated options.
func Validate(kind SocketOptionKind) error {
	if !knownKinds[kind] {
		return errkind.New(errkind.NotImplemented, "unknown socket option")
	}
	return nil
}
