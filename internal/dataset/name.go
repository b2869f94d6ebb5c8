// Package dataset defines the dataset naming convention and the record-level
// contract shared by travel-time and land-use inputs.
package dataset

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind is the leading marker of a dataset name.
type Kind string

// Known dataset kinds.
const (
	KindTravelTime Kind = "tt"
	KindLandUse    Kind = "lu"
)

const (
	nameSeparator = "_"
	yearLength    = 4
)

// Identifier holds the semantic parts of a dataset name such as
// "lu_jobs2010_taz2000". For travel-time datasets Subject is the mode
// (e.g. "auto"); for land-use datasets it is the opportunity type.
type Identifier struct {
	Kind        Kind   `json:"kind"`
	Subject     string `json:"subject"`
	SubjectYear string `json:"subject_year"`
	Scale       string `json:"scale"`
	ScaleYear   string `json:"scale_year"`
}

// MalformedNameError reports a dataset name that does not follow the
// <kind>_<subject><year>_<scale><year> convention.
type MalformedNameError struct {
	Name   string
	Reason string
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("dataset: malformed name %q: %s", e.Name, e.Reason)
}

// Parse splits a dataset name into its kind, subject, scale and years.
func Parse(name string) (Identifier, error) {
	tokens := strings.Split(name, nameSeparator)
	if len(tokens) != 3 {
		return Identifier{}, &MalformedNameError{
			Name:   name,
			Reason: fmt.Sprintf("expected 3 %q-separated tokens, got %d", nameSeparator, len(tokens)),
		}
	}

	subject, subjectYear, ok := splitYear(tokens[1])
	if !ok {
		return Identifier{}, &MalformedNameError{Name: name, Reason: fmt.Sprintf("token %q is too short to carry a year", tokens[1])}
	}
	scale, scaleYear, ok := splitYear(tokens[2])
	if !ok {
		return Identifier{}, &MalformedNameError{Name: name, Reason: fmt.Sprintf("token %q is too short to carry a year", tokens[2])}
	}

	return Identifier{
		Kind:        Kind(tokens[0]),
		Subject:     subject,
		SubjectYear: subjectYear,
		Scale:       scale,
		ScaleYear:   scaleYear,
	}, nil
}

func splitYear(token string) (string, string, bool) {
	if len(token) <= yearLength {
		return "", "", false
	}
	cut := len(token) - yearLength
	return token[:cut], token[cut:], true
}

// String reassembles the dataset name.
func (id Identifier) String() string {
	return string(id.Kind) + nameSeparator + id.Subject + id.SubjectYear + nameSeparator + id.Scale + id.ScaleYear
}

// SameScale reports whether both identifiers use the same geography and scale year.
func (id Identifier) SameScale(other Identifier) bool {
	return id.Scale == other.Scale && id.ScaleYear == other.ScaleYear
}

// ComposeOutputName builds the accessibility table name
// acc_<destination><year>_<mode><year>_<scale><year>.
func ComposeOutputName(mode, modeYear, destination, destinationYear, scale, scaleYear string) (string, error) {
	for _, part := range [][2]string{
		{"mode", mode},
		{"mode year", modeYear},
		{"destination", destination},
		{"destination year", destinationYear},
		{"scale", scale},
		{"scale year", scaleYear},
	} {
		if part[1] == "" {
			return "", eris.Errorf("dataset: output name: %s is empty", part[0])
		}
	}
	return "acc" + nameSeparator + destination + destinationYear + nameSeparator + mode + modeYear + nameSeparator + scale + scaleYear, nil
}

// OutputName names the table produced from a travel-time and a land-use
// dataset. The scale comes from the travel-time side.
func OutputName(travelTime, landUse Identifier) (string, error) {
	return ComposeOutputName(
		travelTime.Subject, travelTime.SubjectYear,
		landUse.Subject, landUse.SubjectYear,
		travelTime.Scale, travelTime.ScaleYear,
	)
}
