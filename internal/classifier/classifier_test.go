package classifier

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDistribution_Top(t *testing.T) {
	d, err := NewDistribution([]string{"A", "B", "OK"}, []float64{0.2, 0.7, 0.1})
	require.NoError(t, err)

	label, p := d.Top()
	assert.Equal(t, "B", label)
	assert.Equal(t, 0.7, p)
	assert.Equal(t, 0.2, d.Prob("A"))
	assert.Equal(t, 0.0, d.Prob("Z"))
}

func TestDistribution_TopTieGoesToFirst(t *testing.T) {
	d := Distribution{Labels: []string{"A", "B"}, Probs: []float64{0.5, 0.5}}
	label, _ := d.Top()
	assert.Equal(t, "A", label)
}

func TestDistribution_Validate(t *testing.T) {
	tests := []struct {
		name string
		d    Distribution
	}{
		{"no labels", Distribution{}},
		{"length mismatch", Distribution{Labels: []string{"A"}, Probs: []float64{0.5, 0.5}}},
		{"negative", Distribution{Labels: []string{"A"}, Probs: []float64{-0.1}}},
		{"above one", Distribution{Labels: []string{"A"}, Probs: []float64{1.5}}},
		{"nan", Distribution{Labels: []string{"A"}, Probs: []float64{math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.d.Validate())
		})
	}
}

func TestNormalize_AllZeroIsUniform(t *testing.T) {
	d := normalize([]string{"A", "B"}, []float64{0, 0})
	assert.Equal(t, []float64{0.5, 0.5}, d.Probs)
}

func TestParseServiceReply(t *testing.T) {
	labels := []string{"A", "B", "OK"}

	d, err := parseServiceReply([]byte(`{"probabilities":[0.1,0.8,0.1]}`), labels)
	require.NoError(t, err)
	label, p := d.Top()
	assert.Equal(t, "B", label)
	assert.InDelta(t, 0.8, p, 1e-9)

	d, err = parseServiceReply([]byte(`{"probabilities":[0.9,0.1],"labels":["X","Y"]}`), labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, d.Labels)
	assert.Equal(t, labels, []string{"A", "B", "OK"}, "configured labels must not be modified")

	_, err = parseServiceReply([]byte(`{"error":"model not loaded"}`), labels)
	assert.ErrorContains(t, err, "model not loaded")

	_, err = parseServiceReply([]byte(`{"probabilities":[0.5,0.5]}`), labels)
	assert.Error(t, err, "count mismatch")

	_, err = parseServiceReply([]byte(`not json`), labels)
	assert.Error(t, err)

	_, err = parseServiceReply([]byte(`{}`), labels)
	assert.Error(t, err)
}

// TestHelperProcess is not a real test. It stands in for the model service:
// it decodes each framed JPEG and favors B for wide images, A otherwise.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("HANDSIGN_WANT_CLASSIFIER_SERVICE") != "1" {
		return
	}
	in := bufio.NewReader(os.Stdin)
	for {
		var length uint32
		if err := binary.Read(in, binary.BigEndian, &length); err != nil {
			os.Exit(0)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(in, data); err != nil {
			os.Exit(1)
		}
		img, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil || img.Empty() {
			fmt.Println(`{"error":"bad image"}`)
			continue
		}
		fmt.Printf("{\"probabilities\":[0.05,0.9,0.05],\"size\":%d}\n", img.Cols())
		img.Close()
	}
}

func TestServiceClassifier_Classify(t *testing.T) {
	t.Setenv("HANDSIGN_WANT_CLASSIFIER_SERVICE", "1")

	c, err := NewServiceClassifier(ServiceConfig{
		Command:   []string{os.Args[0], "-test.run=TestHelperProcess"},
		Labels:    []string{"A", "B", "OK"},
		ImageSize: 32,
	})
	require.NoError(t, err)
	defer c.Close()

	region := gocv.NewMatWithSize(60, 80, gocv.MatTypeCV8UC3)
	defer region.Close()

	d, err := c.Classify(&region)
	require.NoError(t, err)
	label, p := d.Top()
	assert.Equal(t, "B", label)
	assert.InDelta(t, 0.9, p, 1e-9)

	_, err = c.Classify(nil)
	assert.Error(t, err)
}

func TestNewServiceClassifier_Invalid(t *testing.T) {
	_, err := NewServiceClassifier(ServiceConfig{Command: []string{"python3"}})
	assert.Error(t, err)

	_, err = NewServiceClassifier(ServiceConfig{ImageSize: 128})
	assert.Error(t, err)
}

func TestMockClassifier(t *testing.T) {
	labels := []string{"A", "B"}
	m := NewMockClassifier(OneHot(labels, "A", 0.9), OneHot(labels, "B", 0.6))

	d, err := m.Classify(nil)
	require.NoError(t, err)
	label, _ := d.Top()
	assert.Equal(t, "A", label)

	for i := 0; i < 3; i++ {
		d, err = m.Classify(nil)
		require.NoError(t, err)
		label, p := d.Top()
		assert.Equal(t, "B", label)
		assert.Equal(t, 0.6, p)
	}
	assert.Equal(t, 4, m.Calls())

	m.SetError(io.ErrUnexpectedEOF)
	_, err = m.Classify(nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

func TestOneHot(t *testing.T) {
	d := OneHot([]string{"A", "B", "OK"}, "OK", 0.8)
	require.NoError(t, d.Validate())
	assert.InDelta(t, 0.1, d.Prob("A"), 1e-9)
	assert.Equal(t, 0.8, d.Prob("OK"))
}
