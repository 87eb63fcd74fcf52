package physics

const (
	// DefaultGravity is the magnitude of Earth's gravitational acceleration in m/s^2.
	DefaultGravity = 9.81

	// DefaultAirDensity is dry air density at normal conditions in kg/m^3.
	DefaultAirDensity = 1.224

	// DefaultFrictionEps is the squared tangential speed below which friction
	// is not applied.
	DefaultFrictionEps = 0.001

	// DefaultGentlyPush is the minimum approach speed assumed at a contact,
	// so resting objects do not sink into a surface.
	DefaultGentlyPush = 0.15
)
