package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztorgb/server/pkg/colormap"
)

func TestProfileRegistry(t *testing.T) {
	t.Parallel()

	r := NewProfileRegistry("")
	assert.Equal(t, "srgb", r.DefaultName())
	assert.Equal(t, []string{"srgb", "srgb_high", "srgb_low"}, r.Names())

	name, p, err := r.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "srgb", name)
	assert.Equal(t, 0.5, p.Gamma())

	name, p, err = r.Lookup(" SRGB_LOW ")
	require.NoError(t, err)
	assert.Equal(t, "srgb_low", name)
	assert.Equal(t, 1.0, p.Gamma())

	_, _, err = r.Lookup("cmyk")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestProfileRegistryRegister(t *testing.T) {
	t.Parallel()

	r := NewProfileRegistry("flat")
	_, _, err := r.Lookup("")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	require.NoError(t, r.Register("flat", [3]float64{1, 1, 1}, 1))
	name, p, err := r.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "flat", name)
	assert.Equal(t, [3]float64{1, 1, 1}, p.Weights())

	err = r.Register("bad", [3]float64{1, 0, 1}, 1)
	assert.ErrorIs(t, err, colormap.ErrInvalidProfile)

	err = r.Register(" ", [3]float64{1, 1, 1}, 1)
	assert.ErrorIs(t, err, colormap.ErrInvalidProfile)

	infos := r.Infos()
	require.Len(t, infos, 4)
	assert.Equal(t, "flat", infos[0].Name)
	assert.True(t, infos[0].Default)
	assert.Greater(t, infos[0].ChromaLimit, 0.0)
}
