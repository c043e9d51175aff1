package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetOnline(3)
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.MessageOp("create")
	c.MessageOp("create")
	c.ReactionToggled("added")
	c.Evicted()
	c.SendDropped()

	req.Equal(3.0, testutil.ToFloat64(c.OnlineIdentities))
	req.Equal(1.0, testutil.ToFloat64(c.Connections))
	req.Equal(2.0, testutil.ToFloat64(c.Messages.WithLabelValues("create")))
	req.Equal(1.0, testutil.ToFloat64(c.ReactionToggles.WithLabelValues("added")))
	req.Equal(1.0, testutil.ToFloat64(c.Evictions))
	req.Equal(1.0, testutil.ToFloat64(c.DroppedSends))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	require.NotPanics(t, func() {
		c.SetOnline(1)
		c.MessageOp("create")
		c.ConnectionClosed()
		c.SendDropped()
	})
}
