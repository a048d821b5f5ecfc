// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatFrame formats a frame into a human-readable string: a header line
// followed by a hex dump of the slots, 32 per row. Rows that are all zero are
// folded into a single line.
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%d %s (0x%02X) active=%d\n",
		timestamp, f.Seq(), FormatStartCode(f.StartCode()), f.StartCode(), ActiveSlots(f.Slots()))

	const perRow = 32
	slots := f.Slots()
	zeroRun := 0
	for row := 0; row < len(slots); row += perRow {
		end := row + perRow
		if end > len(slots) {
			end = len(slots)
		}
		if isZero(slots[row:end]) {
			zeroRun++
			continue
		}
		if zeroRun > 0 {
			fmt.Fprintf(&b, "  ... %d zero rows\n", zeroRun)
			zeroRun = 0
		}
		fmt.Fprintf(&b, "  %03d:", row)
		for _, v := range slots[row:end] {
			fmt.Fprintf(&b, " %02X", v)
		}
		b.WriteString("\n")
	}
	if zeroRun > 0 {
		fmt.Fprintf(&b, "  ... %d zero rows\n", zeroRun)
	}

	return b.String()
}

// FormatStartCode returns the human-readable name for a start code
func FormatStartCode(sc uint8) string {
	switch sc {
	case StartCodeDimmer:
		return "DIMMER"
	case StartCodeText:
		return "TEXT"
	case StartCodeManufacturer:
		return "MANUFACTURER"
	case StartCodeRDM:
		return "RDM"
	case StartCodeSIP:
		return "SIP"
	default:
		return "ALTERNATE"
	}
}

// FormatMonitored formats monitored slot values in address order
func FormatMonitored(values map[int]int) string {
	addrs := make([]int, 0, len(values))
	for a := range values {
		addrs = append(addrs, a)
	}
	sort.Ints(addrs)

	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, fmt.Sprintf("%d=%d", a, values[a]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatEvent formats any engine event into one or more lines
func FormatEvent(e Event) string {
	timestamp := e.Time.Format("15:04:05.000")

	switch e.Kind {
	case EventSyncLost:
		return fmt.Sprintf("[%s] SYNC LOST\n", timestamp)
	case EventSyncFound:
		if e.Resync != nil {
			return fmt.Sprintf("[%s] SYNC FOUND after %d chunks, %d bytes discarded (%s)\n",
				timestamp, e.Resync.Chunks, e.Resync.Discarded, e.Resync.Duration.Round(time.Millisecond))
		}
		return fmt.Sprintf("[%s] SYNC FOUND\n", timestamp)
	case EventFrame:
		if e.Frame == nil {
			return fmt.Sprintf("[%s] FRAME\n", timestamp)
		}
		return FormatFrame(e.Frame)
	case EventMonitored:
		return fmt.Sprintf("[%s] MONITORED %s\n", timestamp, FormatMonitored(e.Monitored))
	default:
		return fmt.Sprintf("[%s] %s\n", timestamp, e.Kind)
	}
}

// ActiveSlots returns the number of non-zero slots
func ActiveSlots(slots []byte) int {
	n := 0
	for _, v := range slots {
		if v != 0 {
			n++
		}
	}
	return n
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
