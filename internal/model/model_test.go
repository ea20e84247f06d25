package model

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// constantModel returns an artifact whose output is always p.
func constantModel(p float64) []byte {
	bias := math.Log(p / (1 - p))
	return []byte(fmt.Sprintf(`{
		"format": "dense-v1",
		"input_size": 6,
		"layers": [{"weights": [[0,0,0,0,0,0]], "bias": [%v], "activation": "sigmoid"}]
	}`, bias))
}

func TestLoadConstantModel(t *testing.T) {
	e, err := Load(constantModel(0.95))
	require.NoError(t, err)
	assert.Equal(t, 6, e.InputSize())

	p, err := e.Infer(logic.Window{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, p, 1e-6)
}

func TestLoadFileFixture(t *testing.T) {
	e, err := LoadFile(filepath.Join("testdata", "fall.json"))
	require.NoError(t, err)

	// At rest: gravity on z, no rotation
	rest, err := e.Infer(logic.Window{0, 0, 9.81, 0, 0, 0})
	require.NoError(t, err)

	// Violent impact with rotation
	impact, err := e.Infer(logic.Window{25, 20, 40, 8, 8, 8})
	require.NoError(t, err)

	assert.Less(t, rest, float32(0.1))
	assert.Greater(t, impact, float32(0.8))
}

func TestInferIsRepeatable(t *testing.T) {
	e, err := LoadFile(filepath.Join("testdata", "fall.json"))
	require.NoError(t, err)

	w := logic.Window{3, -2, 12, 1, 0.5, -1}
	first, err := e.Infer(w)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		p, err := e.Infer(w)
		require.NoError(t, err)
		assert.Equal(t, first, p)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"corrupt", `{not json`, nil},
		{"format", `{"format":"tflite","input_size":6,"layers":[]}`, ErrUnsupportedFormat},
		{"no layers", `{"format":"dense-v1","input_size":6,"layers":[]}`, ErrShape},
		{"zero input", `{"format":"dense-v1","input_size":0,"layers":[]}`, ErrShape},
		{"row width", `{"format":"dense-v1","input_size":6,"layers":[{"weights":[[1,2]],"bias":[0]}]}`, ErrShape},
		{"bias length", `{"format":"dense-v1","input_size":2,"layers":[{"weights":[[1,2]],"bias":[0,1]}]}`, ErrShape},
		{"two outputs", `{"format":"dense-v1","input_size":2,"layers":[{"weights":[[1,2],[3,4]],"bias":[0,0]}]}`, ErrShape},
		{"normalizer", `{"format":"dense-v1","input_size":2,"normalize":{"mean":[0],"std":[1]},"layers":[{"weights":[[1,2]],"bias":[0]}]}`, ErrShape},
		{"activation", `{"format":"dense-v1","input_size":2,"layers":[{"weights":[[1,2]],"bias":[0],"activation":"swish"}]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Load([]byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, e)

			var me *ModelError
			require.True(t, errors.As(err, &me), "expected *ModelError, got %T", err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "read", me.Op)
}

func TestInferShapeMismatch(t *testing.T) {
	e, err := Load(constantModel(0.5))
	require.NoError(t, err)

	_, err = e.Infer(logic.Window{1, 2, 3})
	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, ErrShape)
}

func TestInferOutOfRange(t *testing.T) {
	// Linear output can leave [0,1]
	e, err := Load([]byte(`{"format":"dense-v1","input_size":1,"layers":[{"weights":[[2]],"bias":[0]}]}`))
	require.NoError(t, err)

	p, err := e.Infer(logic.Window{0.25})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	_, err = e.Infer(logic.Window{1})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestUnavailable(t *testing.T) {
	cause := &ModelError{Op: "read", Err: errors.New("no such file")}
	var c Classifier = Unavailable{Cause: cause}

	_, err := c.Infer(logic.Window{1, 2, 3, 4, 5, 6})
	var ie *InferenceError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, ErrUnavailable)

	var me *ModelError
	assert.True(t, errors.As(err, &me))
}

func BenchmarkInfer(b *testing.B) {
	e, err := LoadFile(filepath.Join("testdata", "fall.json"))
	if err != nil {
		b.Fatal(err)
	}
	w := logic.Window{3, -2, 12, 1, 0.5, -1}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.Infer(w); err != nil {
			b.Fatal(err)
		}
	}
}
