package sensor

// Fake is a test double that returns scripted readings.
type Fake struct {
	// Temperature and Humidity are returned by Channel after a successful Trigger.
	Temperature Value
	Humidity    Value

	// TriggerError, if set, is returned by Trigger.
	TriggerError error

	// TemperatureError and HumidityError, if set, are returned by Channel.
	TemperatureError error
	HumidityError    error

	// Triggers counts calls to Trigger.
	Triggers int

	triggered bool
}

// NewFake creates a Fake returning the given readings.
func NewFake(temperature, humidity Value) *Fake {
	return &Fake{Temperature: temperature, Humidity: humidity}
}

// Trigger records the call and fails if TriggerError is set.
func (f *Fake) Trigger() error {
	f.Triggers++
	if f.TriggerError != nil {
		return f.TriggerError
	}
	f.triggered = true
	return nil
}

// Channel returns the scripted reading for ch.
func (f *Fake) Channel(ch Channel) (Value, error) {
	if !f.triggered {
		return Value{}, ErrNoSample
	}
	switch ch {
	case ChannelTemperature:
		if f.TemperatureError != nil {
			return Value{}, f.TemperatureError
		}
		return f.Temperature, nil
	case ChannelHumidity:
		if f.HumidityError != nil {
			return Value{}, f.HumidityError
		}
		return f.Humidity, nil
	}
	return Value{}, ErrReadFailure
}
