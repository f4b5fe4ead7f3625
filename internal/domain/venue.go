package domain

// Venue is the listing mechanism a candidate was discovered on.
type Venue string

const (
	VenuePumpFun  Venue = "pumpfun"
	VenueMoonshot Venue = "moonshot"
	VenueRaydium  Venue = "raydium"
	VenueOrca     Venue = "orca"
	VenueMeteora  Venue = "meteora"
)

// String returns the string representation of Venue.
func (v Venue) String() string {
	return string(v)
}

// IsValid checks if the venue is a known value.
func (v Venue) IsValid() bool {
	switch v {
	case VenuePumpFun, VenueMoonshot, VenueRaydium, VenueOrca, VenueMeteora:
		return true
	}
	return false
}

// IsFairLaunch reports whether the venue is a bonding-curve launch with no
// separate pool creator funding pattern.
func (v Venue) IsFairLaunch() bool {
	return v == VenuePumpFun || v == VenueMoonshot
}
