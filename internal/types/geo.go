// README: Shared identifier and coordinate value objects used across modules.
package types

// ID identifies agents and stations. Stations use catalog ids, agents use
// the id supplied by the reporting client.
type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
