package types

import "fmt"

// Modality represents an imaging modality
type Modality string

const (
	ModalityXRay       Modality = "xray"
	ModalityCT         Modality = "ct"
	ModalityMRI        Modality = "mri"
	ModalityUltrasound Modality = "ultrasound"
)

// IsValid checks if the modality is valid
func (m Modality) IsValid() bool {
	switch m {
	case ModalityXRay,
		ModalityCT,
		ModalityMRI,
		ModalityUltrasound:
		return true
	default:
		return false
	}
}

// String returns the string representation of the modality
func (m Modality) String() string {
	return string(m)
}

// ParseModality parses a string into a Modality
func ParseModality(s string) (Modality, error) {
	m := Modality(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid imaging modality: %s", s)
	}
	return m, nil
}
