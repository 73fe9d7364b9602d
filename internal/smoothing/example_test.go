package smoothing_test

import (
	"fmt"

	"github.com/ayusman/handsign/internal/smoothing"
)

func ExampleStream_Push() {
	stream, _ := smoothing.NewStream(smoothing.DefaultWindow, "A", "B", "OK")

	frames := []smoothing.Prediction{
		{Label: "A", Confidence: 0.92},
		{Label: "A", Confidence: 0.88},
		{Label: "B", Confidence: 0.51},
		{Label: "A", Confidence: 0.90},
	}
	for _, p := range frames {
		d, _ := stream.Push(p)
		fmt.Printf("%s (%.2f)\n", d.Label, d.Confidence)
	}
	// Output:
	// A (0.92)
	// A (0.88)
	// A (0.51)
	// A (0.90)
}
