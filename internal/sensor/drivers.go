package sensor

// ClimateSource reads temperature (°C) and relative humidity (%) in one
// physical transaction.
type ClimateSource interface {
	ReadClimate() (temperature, humidity float64, err error)
}

// ADC returns the sensor output as a fraction of full scale in (0, 1].
type ADC interface {
	ReadFraction() (float64, error)
}

// GasSource reads the three gas concentrations from one measurement.
type GasSource interface {
	ReadGas() (GasReading, error)
}

// LightSource returns the raw light sensor level. Digital sensors return 0 or 1.
type LightSource interface {
	LightLevel() float64
}

// MotionSource returns the PIR output state.
type MotionSource interface {
	MotionDetected() bool
}

// Indicator is a binary output such as an LED.
type Indicator interface {
	On() error
	Off() error
}
