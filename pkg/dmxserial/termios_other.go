// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package dmxserial

type lineControl struct{}

func openLineControl(string) (*lineControl, error) {
	return nil, ErrUnsupported
}

func (*lineControl) setMarkMode() error {
	return ErrUnsupported
}

func (*lineControl) setStrip(bool) error {
	return ErrUnsupported
}

func (*lineControl) restore() error {
	return nil
}

func (*lineControl) close() {}
