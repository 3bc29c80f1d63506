// Package units holds the unit conversions used at the wire boundary.
// Telemetry is stored in the units the avionics report (metres, pascals,
// celsius); the dashboard schema wants imperial variants for some of them.
package units

// MetresToFeet converts metres to feet.
func MetresToFeet(m float64) float64 { return m * 3.28084 }

// FeetToMetres converts feet to metres.
func FeetToMetres(ft float64) float64 { return ft / 3.28084 }

// PascalsToPSI converts pascals to pounds per square inch.
func PascalsToPSI(pa float64) float64 { return pa / 6894.757 }

// CelsiusToFahrenheit converts celsius to fahrenheit.
func CelsiusToFahrenheit(c float64) float64 { return c*9.0/5.0 + 32.0 }
