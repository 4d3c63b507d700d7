package config

import "github.com/cuemby/ecowatt/pkg/types"

// DefaultRegisterCatalog is the build-time register map for the
// reference inverter this firmware targets. A bench build pointed at
// different hardware replaces this with its own catalog. The packages
// under pkg/ take the catalog as a map of Register values; cmd/ecowatt
// refers to "power-setpoint", "output-power" and "heatsink-temperature"
// by ID when it wires the command dispatcher and the power report.
func DefaultRegisterCatalog() map[string]types.Register {
	registers := []types.Register{
		{ID: "ac-voltage", Address: 0x0000, Type: types.RegisterVoltage},
		{ID: "ac-current", Address: 0x0001, Type: types.RegisterCurrent},
		{ID: "grid-frequency", Address: 0x0002, Type: types.RegisterFrequency},
		{ID: "heatsink-temperature", Address: 0x0003, Type: types.RegisterTemperature},
		{ID: "output-power", Address: 0x0004, Type: types.RegisterPower},
		{ID: "power-setpoint", Address: 0x0005, Type: types.RegisterPowerSet},
	}

	catalog := make(map[string]types.Register, len(registers))
	for _, r := range registers {
		catalog[r.ID] = r
	}
	return catalog
}

// DefaultActiveRegisterSet is the initial register selection before any
// configuration reconciliation has taken place.
func DefaultActiveRegisterSet() []string {
	return []string{"ac-voltage", "ac-current", "grid-frequency", "output-power"}
}
