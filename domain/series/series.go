// Package series defines the instrument series identifier and the
// masked projections used to group related books for fan-out
// operations.
package series

import "fmt"

// ID is the complete key for one instrument series. The zero value is
// not a valid series.
type ID struct {
	Country    uint8
	Market     uint8
	Group      uint8
	Modifier   uint8
	Commodity  uint16
	Expiration uint16
	Strike     int32
}

// MaskInstrumentType keeps country, market and instrument group.
func (id ID) MaskInstrumentType() ID {
	id.Modifier = 0
	id.Commodity = 0
	id.Expiration = 0
	id.Strike = 0
	return id
}

// MaskInstrumentClass keeps country, market, instrument group and
// commodity.
func (id ID) MaskInstrumentClass() ID {
	id.Modifier = 0
	id.Expiration = 0
	id.Strike = 0
	return id
}

// MaskUnderlying keeps country, market and commodity.
func (id ID) MaskUnderlying() ID {
	id.Group = 0
	id.Modifier = 0
	id.Expiration = 0
	id.Strike = 0
	return id
}

func (id ID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d/%d@%d:%d",
		id.Country, id.Market, id.Group, id.Modifier,
		id.Commodity, id.Expiration, id.Strike)
}
