package service

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/pkg/colormap"
)

func TestScaleSpecBuild(t *testing.T) {
	t.Parallel()

	s, err := ScaleSpec{Kind: "linear", VMag: 2}.Build()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, real(s.Apply(1)), 1e-12)

	s, err = ScaleSpec{Kind: "LOG", VMin: 0.01, VMax: 1, VLMax: 0.9}.Build()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, real(s.Apply(1)), 1e-12)

	_, err = ScaleSpec{Kind: "sqrt"}.Build()
	assert.ErrorIs(t, err, colormap.ErrInvalidScale)

	_, err = ScaleSpec{Kind: "linear", VMag: -1}.Build()
	assert.ErrorIs(t, err, colormap.ErrInvalidScale)
}

func TestScaleSpecString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "linear(1)", ScaleSpec{}.String())
	assert.Equal(t, "linear(2.5)", ScaleSpec{Kind: "linear", VMag: 2.5, VMin: 3}.String())
	assert.Equal(t, "log(0.01,1,0.9)", ScaleSpec{Kind: "log"}.String())
	assert.Equal(t, "log(0.1,10,0.8)", ScaleSpec{Kind: "log", VMin: 0.1, VMax: 10, VLMax: 0.8}.String())
}

func TestParseScaleQuery(t *testing.T) {
	t.Parallel()

	fallback := ScaleSpec{Kind: ScaleLog, VMin: 0.1, VMax: 100, VLMax: 0.9}

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()

		spec, err := ParseScaleQuery(url.Values{}, fallback)
		require.NoError(t, err)
		assert.Equal(t, fallback, spec)
	})

	t.Run("OverrideParameter", func(t *testing.T) {
		t.Parallel()

		spec, err := ParseScaleQuery(url.Values{"vmax": {"1000"}}, fallback)
		require.NoError(t, err)
		assert.Equal(t, ScaleSpec{Kind: ScaleLog, VMin: 0.1, VMax: 1000, VLMax: 0.9}, spec)
	})

	t.Run("OtherKind", func(t *testing.T) {
		t.Parallel()

		spec, err := ParseScaleQuery(url.Values{"scale": {"linear"}, "vmag": {"3"}}, fallback)
		require.NoError(t, err)
		assert.Equal(t, ScaleSpec{Kind: ScaleLinear, VMag: 3}, spec)
	})

	t.Run("BadNumber", func(t *testing.T) {
		t.Parallel()

		_, err := ParseScaleQuery(url.Values{"vmin": {"abc"}}, fallback)
		assert.True(t, IsInvalidScale(err))
	})

	t.Run("BadRange", func(t *testing.T) {
		t.Parallel()

		_, err := ParseScaleQuery(url.Values{"vmin": {"1000"}}, fallback)
		assert.True(t, IsInvalidScale(err))
	})
}

func TestSuggestScales(t *testing.T) {
	t.Parallel()

	got := SuggestScales(field.Stats{MaxMag: 10, MinNonZero: 0.5})
	require.Len(t, got, 2)
	assert.Equal(t, ScaleSpec{Kind: ScaleLinear, VMag: 10}, got[0])
	assert.Equal(t, ScaleSpec{Kind: ScaleLog, VMin: 0.5, VMax: 10, VLMax: 0.9}, got[1])

	got = SuggestScales(field.Stats{})
	assert.Equal(t, 1.0, got[0].VMag)
	assert.InDelta(t, 1e-6, got[1].VMin, 1e-18)

	for _, spec := range got {
		_, err := spec.Build()
		assert.NoError(t, err)
	}
}
