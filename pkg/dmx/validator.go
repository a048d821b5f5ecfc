// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "fmt"

// AnomalyType represents different kinds of frame anomalies
type AnomalyType int

const (
	AnomalyAlternateStartCode AnomalyType = iota
	AnomalyRDMStartCode
	AnomalyTextStartCode
	AnomalyManufacturerStartCode
)

// ValidationError describes something unusual about a frame that arrived
// with a valid break marker. Anomalies never affect synchronization.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a frame's start code.
// Returns a slice of validation errors (empty for plain dimmer data).
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	sc := f.StartCode()
	details := map[string]interface{}{"start_code": sc, "seq": f.Seq()}

	switch sc {
	case StartCodeDimmer:
		return errors
	case StartCodeRDM:
		errors = append(errors, ValidationError{
			Type:    AnomalyRDMStartCode,
			Message: fmt.Sprintf("RDM packet on the data line (start code 0x%02X)", sc),
			Details: details,
		})
	case StartCodeText:
		errors = append(errors, ValidationError{
			Type:    AnomalyTextStartCode,
			Message: fmt.Sprintf("ASCII text packet (start code 0x%02X)", sc),
			Details: details,
		})
	case StartCodeManufacturer:
		errors = append(errors, ValidationError{
			Type:    AnomalyManufacturerStartCode,
			Message: fmt.Sprintf("Manufacturer specific packet (start code 0x%02X)", sc),
			Details: details,
		})
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyAlternateStartCode,
			Message: fmt.Sprintf("Alternate start code 0x%02X", sc),
			Details: details,
		})
	}

	return errors
}
