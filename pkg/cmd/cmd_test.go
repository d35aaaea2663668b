package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	name string
	ran  *[]string
}

func (s stub) Name() string        { return s.name }
func (s stub) Description() string { return "stub " + s.name }
func (s stub) Run(ctx context.Context, inv *Invocation) error {
	*s.ran = append(*s.ran, s.name)
	return nil
}

func tag(label string, trace *[]string) Middleware {
	return func(next Command) Command {
		return Wrap(next, func(ctx context.Context, inv *Invocation) error {
			*trace = append(*trace, label)
			return next.Run(ctx, inv)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var ran []string
	require.NoError(t, r.Register(stub{name: "zeta", ran: &ran}))
	require.NoError(t, r.Register(stub{name: "alpha", ran: &ran}))
	assert.Error(t, r.Register(stub{name: "alpha", ran: &ran}))
	assert.Error(t, r.Register(stub{name: "", ran: &ran}))

	assert.Nil(t, r.Get("missing"))
	assert.Equal(t, "alpha", r.Get("alpha").Name())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "zeta", all[1].Name())

	assert.Panics(t, func() { r.MustRegister(stub{name: "zeta", ran: &ran}) })
}

func TestApplyOrderAndRoot(t *testing.T) {
	var trace []string
	base := stub{name: "ptero", ran: &trace}
	c := Apply(base, tag("outer", &trace), tag("inner", &trace))

	assert.Equal(t, "ptero", c.Name())
	assert.Equal(t, "stub ptero", c.Description())
	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner", "ptero"}, trace)

	assert.Equal(t, base, Root(c))
	assert.Equal(t, base, Root(base))
}

func TestInvocationArg(t *testing.T) {
	inv := &Invocation{Args: []string{"status", "survival"}}
	assert.Equal(t, "survival", inv.Arg(1))
	assert.Equal(t, "", inv.Arg(2))
	assert.Equal(t, "", (*Invocation)(nil).Arg(0))
}
