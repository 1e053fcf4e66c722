package data

import "fmt"

// Kind enumerates the data kinds a sampling cycle can request.
type Kind int

// data kinds
const (
	KindModem Kind = iota
	KindBattery
	KindEnvironmental
	KindGNSS
	KindMovement
	KindModemStatic
	KindModemDynamic
)

// KindCount is the number of data kinds. A request listing more kinds than
// this is invalid.
const KindCount = 7

func (k Kind) String() string {
	switch k {
	case KindModem:
		return "modem"
	case KindBattery:
		return "battery"
	case KindEnvironmental:
		return "environmental"
	case KindGNSS:
		return "gnss"
	case KindMovement:
		return "movement"
	case KindModemStatic:
		return "modem_static"
	case KindModemDynamic:
		return "modem_dynamic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Handle identifies an encoded payload that waits for a cloud
// acknowledgment. The zero value is never issued.
type Handle uint64
