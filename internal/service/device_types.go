package service

import "github.com/medev213/darksmart/internal/domain"

// Vendor identifiers advertised during SYNC.
const (
	manufacturerName = "DarkSmart"
	hardwareVersion  = "1.0"
	softwareVersion  = "1.0.0"
)

const (
	typeOutlet = "action.devices.types.OUTLET"
	typeSwitch = "action.devices.types.SWITCH"
	typeSensor = "action.devices.types.SENSOR"
	typePlug   = "action.devices.types.PLUG"
	typeValve  = "action.devices.types.VALVE"

	traitOnOff      = "action.devices.traits.OnOff"
	traitThermostat = "action.devices.traits.TemperatureSetting"
)

var googleDeviceTypes = map[string]string{
	domain.CategoryOutlet:     typeOutlet,
	domain.CategorySwitch:     typeSwitch,
	domain.CategorySensor:     typeSensor,
	domain.CategoryPlugBridge: typePlug,
	domain.CategoryValve:      typeValve,
}

var categoryTraits = map[string][]string{
	domain.CategoryOutlet:     {traitOnOff},
	domain.CategorySwitch:     {traitOnOff},
	domain.CategorySensor:     {traitThermostat},
	domain.CategoryPlugBridge: {traitOnOff},
	domain.CategoryValve:      {traitOnOff},
}

// googleDeviceType maps a device category to its vendor type tag. An
// unrecognized category is reported as a plain outlet, never an error.
func googleDeviceType(category string) string {
	if t, ok := googleDeviceTypes[category]; ok {
		return t
	}
	return typeOutlet
}

// traitsForCategory returns the default capability list for a category,
// falling back to basic on/off.
func traitsForCategory(category string) []string {
	if traits, ok := categoryTraits[category]; ok {
		return traits
	}
	return []string{traitOnOff}
}
