package symtab

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookupMonadic(t *testing.T) {
	r := NewRegistry()
	r.RegisterMonadic(MonadicEntry{Name: "drop", Fn: func(_ interface{}, d *packet.Descriptor) (*packet.Descriptor, error) {
		d.CB.Action = packet.ActionDrop
		return d, nil
	}})

	e, err := r.LookupMonadic("drop")
	require.NoError(t, err)
	assert.Equal(t, "drop", e.Name)

	_, err = r.LookupMonadic("nope")
	assert.Error(t, err)
}

func TestRegisterAndLookupPredicate(t *testing.T) {
	r := NewRegistry()
	r.RegisterPredicate(PredicateEntry{Name: "is_udp", Fn: func(_ interface{}, d *packet.Descriptor) bool {
		return true
	}})

	e, err := r.LookupPredicate("is_udp")
	require.NoError(t, err)
	assert.True(t, e.Fn(nil, &packet.Descriptor{}))

	_, err = r.LookupPredicate("nope")
	assert.Error(t, err)
}

func TestRegisterAndLookupProperty(t *testing.T) {
	r := NewRegistry()
	r.RegisterProperty(PropertyEntry{Name: "ip_tos", Fn: func(d *packet.Descriptor) (uint64, bool) {
		return 42, true
	}})

	e, err := r.LookupProperty("ip_tos")
	require.NoError(t, err)
	v, ok := e.Fn(&packet.Descriptor{})
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	_, err = r.LookupProperty("nope")
	assert.Error(t, err)
}

func TestRegisterReplacesExistingEntry(t *testing.T) {
	r := NewRegistry()
	r.RegisterMonadic(MonadicEntry{Name: "x", HighOrder: false})
	r.RegisterMonadic(MonadicEntry{Name: "x", HighOrder: true})

	e, err := r.LookupMonadic("x")
	require.NoError(t, err)
	assert.True(t, e.HighOrder)
}
