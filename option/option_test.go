package option_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/option"
)

func TestResolveDefaults(t *testing.T) {
	c := option.Resolve(nil)
	assert.Equal(t, "asyncsock-worker", c.ThreadName)
	assert.Equal(t, 256, c.MaxEventsPerWait)
	assert.Equal(t, option.RoundRobin, c.LoadBalancingPolicy)
}

func TestResolveAppliesOptionsInOrder(t *testing.T) {
	c := option.Resolve([]option.Option{
		option.WithThreadName("w1"),
		nil,
		option.WithMaxEventsPerWait(10),
		option.WithThreadName("w2"),
		option.WithLoadBalancing(option.LeastLoaded),
		option.WithMetrics(true, false),
	})
	assert.Equal(t, "w2", c.ThreadName)
	assert.Equal(t, 10, c.MaxEventsPerWait)
	assert.Equal(t, option.LeastLoaded, c.LoadBalancingPolicy)
	assert.True(t, c.MetricsPerWaiter)
	assert.False(t, c.MetricsPerSocket)
}

func TestSocketOptionConstructors(t *testing.T) {
	o := option.WithLinger(true, 5*time.Second)
	assert.Equal(t, option.Linger, o.Kind)
	assert.True(t, o.Linger.Enabled)
	assert.Equal(t, 5*time.Second, o.Linger.Duration)

	o2 := option.WithTCPCongestionControl("bbr")
	assert.Equal(t, "bbr", o2.String)
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	err := option.Validate(option.SocketOptionKind(999))
	require.Error(t, err)
	assert.Equal(t, errkind.NotImplemented, errkind.Of(err))
}

func TestValidateAcceptsKnownKind(t *testing.T) {
	require.NoError(t, option.Validate(option.NoDelay))
}
