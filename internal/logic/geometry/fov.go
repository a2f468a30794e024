package geometry

import "math"

// FieldOfView returns the angle of view in degrees across a sensor
// dimension, for a lens of focalMm magnified by zoom.
// Formula: FOV = 2 × arctan(sensor / (2 × focal × zoom))
// Returns 0 when the optics are unknown.
func FieldOfView(sensorMm, focalMm, zoom float64) float64 {
	if sensorMm <= 0 || focalMm <= 0 {
		return 0
	}
	if zoom < 1 {
		zoom = 1
	}
	return 2.0 * math.Atan(sensorMm/(2.0*focalMm*zoom)) * 180.0 / math.Pi
}
