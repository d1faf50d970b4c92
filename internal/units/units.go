// Package units holds the fixed SI quantity taxonomy sensors are registered
// against.
package units

import "fmt"

// Quantity is one member of the fixed SI taxonomy a Sensor may measure.
type Quantity string

const (
	Length       Quantity = "Length"
	Volume       Quantity = "Volume"
	Mass         Quantity = "Mass"
	Force        Quantity = "Force"
	Pressure     Quantity = "Pressure"
	Temperature  Quantity = "Temperature"
	Time         Quantity = "Time"
	Potential    Quantity = "Potential"
	Current      Quantity = "Current"
	Power        Quantity = "Power"
	Resistance   Quantity = "Resistance"
	Frequency    Quantity = "Frequency"
	Energy       Quantity = "Energy"
	Luminosity   Quantity = "Luminosity"
	Illuminance  Quantity = "Illuminance"
	Percentage   Quantity = "Percentage"
	Velocity     Quantity = "Velocity"
	Acceleration Quantity = "Acceleration"
	Flow         Quantity = "Flow"
)

// Unit describes the SI unit name and symbol for a Quantity.
type Unit struct {
	Name   string
	Symbol string
}

var table = map[Quantity]Unit{
	Length:       {"meter", "m"},
	Volume:       {"cubic meter", "m3"},
	Mass:         {"kilogram", "kg"},
	Force:        {"newton", "N"},
	Pressure:     {"pascal", "Pa"},
	Temperature:  {"kelvin", "K"},
	Time:         {"second", "s"},
	Potential:    {"volt", "V"},
	Current:      {"ampere", "A"},
	Power:        {"watt", "W"},
	Resistance:   {"ohm", "Ω"},
	Frequency:    {"hertz", "Hz"},
	Energy:       {"joule", "J"},
	Luminosity:   {"candle", "cd"},
	Illuminance:  {"lux", "lx"},
	Percentage:   {"percent", "%"},
	Velocity:     {"meters per second", "m/s"},
	Acceleration: {"meters per second squared", "m/s^2"},
	Flow:         {"cubic meters per second", "m3/s"},
}

// Parse validates that s names a known SI quantity and returns it.
func Parse(s string) (Quantity, error) {
	q := Quantity(s)
	if _, ok := table[q]; !ok {
		return "", fmt.Errorf("unknown sensor data quantity %q", s)
	}
	return q, nil
}

// Unit returns the SI unit for q. Callers should only call this with a
// Quantity that came from Parse.
func (q Quantity) Unit() Unit {
	return table[q]
}
