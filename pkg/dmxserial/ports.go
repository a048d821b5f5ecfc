// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmxserial

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String formats the port for a listing
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.SerialNumber != "" {
		s += " (" + p.SerialNumber + ")"
	}
	return s
}

// ListPorts returns the serial ports present on the system sorted by name
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("dmxserial: enumerate ports: %w", err)
	}
	return portInfos(details), nil
}

func portInfos(details []*enumerator.PortDetails) []PortInfo {
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports
}
