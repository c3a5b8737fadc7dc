// Package domain models hourly climate observations and their period summaries.
//
// # Data Sources
//
// Two raw sources are normalized into the same canonical table:
//
//	EPW (EnergyPlus Weather): a typical meteorological year assembled from
//	several real years. The year field is meaningless and is replaced by a
//	single nominal year; hours are encoded 1–24.
//
//	INMET (Instituto Nacional de Meteorologia): automatic-station CSV exports,
//	delivered as two half-year files per station and year. Dates are
//	DD/MM/YYYY, hours are HHMM in UTC, decimals use a comma.
//
// # Canonical Columns
//
//	Datetime      observation time (Frame index, UTC)
//	Temp          dry-bulb temperature, °C
//	Umi           relative humidity, %
//	Vel_vento     wind speed, m/s
//	Dir_vento     wind direction, degrees
//	Precipitacao  precipitation, mm
//	Ori_vento     compass sector derived from Dir_vento
//
// Sensacao_termica (apparent temperature, °C) is appended after loading.
//
// # Wind Sectors
//
// Bearings are mapped to eight 45° sectors centered on the cardinal and
// intercardinal points, in Portuguese compass notation:
//
//	N, NE, L (east), SE, S, SO (southwest), O (west), NO (northwest)
//
// The order is significant: it is the category order for grouping and the
// tie-break order when several sectors share the highest frequency.
//
// # Apparent Temperature
//
// Hot and humid rows (T ≥ 27 °C, RH ≥ 40 %) use the NOAA Rothfusz heat index;
// cold and windy rows (T ≤ 10 °C, V ≥ 1.3 m/s) use the Environment Canada wind
// chill with wind in km/h. All other rows keep the dry-bulb temperature.
//
// # Aggregation
//
// Tables are resampled per hour, day, week (Monday–Sunday, labeled Sunday) or
// month (labeled with its last day). Column names follow the suffix
// convention max, min, med (mean), dp (standard deviation), mediana (median),
// tot (sum) and moda (mode). Wind direction is averaged arithmetically, so 350°
// and 10° average to 180°; [CircularMeanDegrees] is available where a vector
// mean is wanted. Values are rounded to one decimal.
package domain
