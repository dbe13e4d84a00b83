package postprocess

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{in: "nms", want: AlgorithmNMS},
		{in: "NMS", want: AlgorithmNMS},
		{in: " rotated_nms ", want: AlgorithmRotatedNMS},
		{in: "rnms", want: AlgorithmRotatedNMS},
		{in: "poly_nms", want: AlgorithmRotatedNMS},
		{in: "soft_nms", want: AlgorithmSoftNMS},
		{in: "matrix_nms", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewNMSConfig(t *testing.T) {
	cfg, err := NewNMSConfig(AlgorithmRotatedNMS, 0.1)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRotatedNMS, cfg.Algorithm())
	assert.Equal(t, float32(0.1), cfg.IoUThreshold())
	assert.False(t, cfg.ClassAgnostic())
	assert.Equal(t, DefaultSoftParams(), cfg.Soft())
	assert.Equal(t, AlgorithmRotatedNMS, cfg.Suppressor().Algorithm())
	assert.Equal(t, "rotated_nms(iou=0.100)", cfg.String())

	_, err = NewNMSConfig(AlgorithmNMS, 1.5)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewNMSConfig(AlgorithmNMS, -0.1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewNMSConfig("matrix_nms", 0.5)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewNMSConfig(AlgorithmSoftNMS, 0.5, WithSoftParams(SoftParams{Method: SoftGaussian}))
	assert.ErrorIs(t, err, ErrInvalidConfig, "gaussian needs a positive sigma")

	_, err = NewNMSConfig(AlgorithmSoftNMS, 0.5, WithSoftParams(SoftParams{Method: "cubic"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewNMSConfig(AlgorithmSoftNMS, 0.5, WithSoftParams(SoftParams{Method: SoftLinear, MinScore: 1}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var zero NMSConfig
	assert.Nil(t, zero.Suppressor())
}

func TestParseNMSConfig(t *testing.T) {
	t.Run("soft parameters", func(t *testing.T) {
		cfg, err := ParseNMSConfig("soft_nms", 0.3, map[string]any{
			"method":    "Gaussian",
			"sigma":     0.7,
			"min_score": 0.01,
		})
		require.NoError(t, err)
		assert.Equal(t, AlgorithmSoftNMS, cfg.Algorithm())
		assert.Equal(t, SoftParams{Method: SoftGaussian, Sigma: 0.7, MinScore: 0.01}, cfg.Soft())
	})

	t.Run("alias and class agnostic", func(t *testing.T) {
		cfg, err := ParseNMSConfig("rnms", 0.1, map[string]any{"class_agnostic": true})
		require.NoError(t, err)
		assert.Equal(t, AlgorithmRotatedNMS, cfg.Algorithm())
		assert.True(t, cfg.ClassAgnostic())
	})

	t.Run("nil extra", func(t *testing.T) {
		cfg, err := ParseNMSConfig("nms", 0.5, nil)
		require.NoError(t, err)
		assert.Equal(t, AlgorithmNMS, cfg.Algorithm())
	})

	errCases := []struct {
		name    string
		alg     string
		extra   map[string]any
		wantErr error
	}{
		{name: "unknown algorithm", alg: "fancy_nms", wantErr: ErrUnsupportedAlgorithm},
		{name: "unknown key", alg: "nms", extra: map[string]any{"iou_thr": 0.5}, wantErr: ErrInvalidConfig},
		{name: "method type", alg: "soft_nms", extra: map[string]any{"method": 1}, wantErr: ErrInvalidConfig},
		{name: "sigma type", alg: "soft_nms", extra: map[string]any{"sigma": "wide"}, wantErr: ErrInvalidConfig},
		{name: "class_agnostic type", alg: "nms", extra: map[string]any{"class_agnostic": "yes"}, wantErr: ErrInvalidConfig},
		{name: "negative min_score", alg: "soft_nms", extra: map[string]any{"min_score": -1}, wantErr: ErrInvalidConfig},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNMSConfig(tt.alg, 0.5, tt.extra)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "unsupported_algorithm", ErrorKind(errors.Wrap(ErrUnsupportedAlgorithm, "x")))
	assert.Equal(t, "invalid_box_encoding", ErrorKind(errors.Wrap(ErrInvalidBoxEncoding, "x")))
	assert.Equal(t, "shape_mismatch", ErrorKind(errors.Wrapf(ErrShapeMismatch, "%d", 1)))
	assert.Equal(t, "invalid_config", ErrorKind(ErrInvalidConfig))
	assert.Equal(t, "other", ErrorKind(errors.New("boom")))
}
