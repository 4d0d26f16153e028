package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestRegistryLookupMissReturnsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nope")
	require.Error(t, err)
}

func TestRegistryRegisterThenLookupHits(t *testing.T) {
	r := NewRegistry()
	r.Register("compute", func(context.Context, interface{}) error { return nil })

	body, err := r.Lookup("compute")
	require.NoError(t, err)
	require.NoError(t, body(context.Background(), nil))
}

func TestRegistryReRegisterReplacesImplementation(t *testing.T) {
	r := NewRegistry()
	r.Register("x", func(context.Context, interface{}) error { return nil })
	r.Register("x", func(context.Context, interface{}) error { return errBoom })

	body, err := r.Lookup("x")
	require.NoError(t, err)
	require.ErrorIs(t, body(context.Background(), nil), errBoom)
}
