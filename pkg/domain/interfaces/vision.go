package interfaces

import "context"

// Classification is the result of one image classification call
type Classification struct {
	Label      string
	Confidence float64 // [0,1]
}

// VisionClassifier is the narrow contract over an image-classification
// service. The returned label is always a member of the expected set.
type VisionClassifier interface {
	Classify(ctx context.Context, image []byte, labels []string) (*Classification, error)
}
