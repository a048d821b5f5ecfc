// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dmx decodes a DMX-512 universe stream received on a serial line.
//
// The receiver's line discipline is expected to run in "mark" mode: a BREAK on
// the wire is delivered as the 3-byte marker FF 00 00 and every data byte with
// value FF is delivered doubled (FF FF). The Engine undoes that escaping,
// checks the marker at the end of each 516-byte candidate frame, and
// resynchronizes on a clean BREAK when the check fails.
package dmx

// Line parameters for DMX-512
const (
	BaudRate = 250000
	DataBits = 8
	StopBits = 2
)

// Frame layout
const (
	SlotCount  = 512
	MarkerSize = 3
	FrameSize  = 1 + SlotCount + MarkerSize // start code + slots + break marker
)

// Escape encoding used by the line discipline in mark mode
const (
	MarkByte = 0xFF
)

// Marker is the byte sequence a BREAK condition is delivered as.
var Marker = [MarkerSize]byte{MarkByte, 0x00, 0x00}

// Start codes (ANSI E1.11 and E1.20)
const (
	StartCodeDimmer       = 0x00
	StartCodeText         = 0x17
	StartCodeManufacturer = 0x91
	StartCodeRDM          = 0xCC
	StartCodeSIP          = 0xCF
)

// Resync alignment: the chunk after the marker lead byte still holds the two
// marker zeros, the frame body and the next marker.
const (
	resyncChunkSize   = FrameSize
	resyncCompensate  = FrameSize + 2
	resyncAlignedRead = FrameSize
)
