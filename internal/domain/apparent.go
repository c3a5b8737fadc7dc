package domain

import (
	"fmt"
	"math"
)

// Thresholds selecting the apparent-temperature formula.
const (
	heatIndexMinTemp     = 27.0 // °C
	heatIndexMinHumidity = 40.0 // %
	windChillMaxTemp     = 10.0 // °C
	windChillMinSpeed    = 1.3  // m/s
)

// HeatIndex returns the NOAA Rothfusz heat index in °C for a temperature in
// °C and relative humidity in %. The regression runs in Fahrenheit.
func HeatIndex(tempC, rh float64) float64 {
	const (
		c1 = -42.379
		c2 = 2.04901523
		c3 = 10.14333127
		c4 = -0.22475541
		c5 = -6.83783e-3
		c6 = -5.481717e-2
		c7 = 1.22874e-3
		c8 = 8.5282e-4
		c9 = -1.99e-6
	)
	t := tempC*1.8 + 32
	hi := c1 + c2*t + c3*rh + c4*t*rh + c5*t*t +
		c6*rh*rh + c7*t*t*rh + c8*t*rh*rh + c9*t*t*rh*rh
	return (hi - 32) * 5 / 9
}

// WindChill returns the wind chill in °C for a temperature in °C and a wind
// speed in m/s. The formula takes km/h.
func WindChill(tempC, speedMS float64) float64 {
	v := math.Pow(speedMS*3.6, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*v + 0.3965*tempC*v
}

// ApparentTemperature picks the felt temperature for one observation. The
// heat-index mask is applied first and the wind-chill mask second, so a row
// matching both ends up with the wind chill. NaN inputs match neither mask.
func ApparentTemperature(tempC, rh, speedMS float64) float64 {
	felt := tempC
	if tempC >= heatIndexMinTemp && rh >= heatIndexMinHumidity {
		felt = HeatIndex(tempC, rh)
	}
	if tempC <= windChillMaxTemp && speedMS >= windChillMinSpeed {
		felt = WindChill(tempC, speedMS)
	}
	return felt
}

// DeriveApparentTemperature returns f with a Sensacao_termica column computed
// row by row from Temp, Umi and Vel_vento.
func DeriveApparentTemperature(f Frame) (Frame, error) {
	if missing := f.Missing(ColTemp, ColUmi, ColVelVento); len(missing) > 0 {
		return Frame{}, fmt.Errorf("%w: apparent temperature requires columns %v", ErrSchema, missing)
	}
	temp, _ := f.Float(ColTemp)
	rh, _ := f.Float(ColUmi)
	wind, _ := f.Float(ColVelVento)

	felt := make([]float64, f.Len())
	for i := range felt {
		felt[i] = ApparentTemperature(temp[i], rh[i], wind[i])
	}
	return f.WithFloat(ColSensacaoTermica, felt)
}
