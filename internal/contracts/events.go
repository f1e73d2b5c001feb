package contracts

// EventName identifies a message on the bus. The catalog is closed: every
// consumer dispatches on these values and anything else is rejected at decode.
type EventName string

const (
	EntryScanAccepted EventName = "Entry.ScanAccepted"
	ExitScanAccepted  EventName = "Exit.ScanAccepted"
	DoorOpenRequested EventName = "Door.OpenRequested"
	EntryGranted      EventName = "Entry.Granted"
	DisplayAppend     EventName = "Display.Append"
	DisplayRemove     EventName = "Display.Remove"
	VisitTimedOut     EventName = "VisitSession.TimedOut"
)

func (n EventName) String() string { return string(n) }

func (n EventName) Valid() bool {
	switch n {
	case EntryScanAccepted, ExitScanAccepted, DoorOpenRequested,
		EntryGranted, DisplayAppend, DisplayRemove, VisitTimedOut:
		return true
	}
	return false
}

// IsCommand reports whether the name addresses an actuator rather than
// narrating a domain fact. Commands are published on the commands exchange.
func (n EventName) IsCommand() bool {
	return n == DoorOpenRequested
}
