package contracts

import "fmt"

// Exchange names. Both are durable topic exchanges; the dead-letter pair
// catches messages rejected by consumers.
const (
	EventsExchange     = "enlistment.events"
	CommandsExchange   = "enlistment.commands"
	DeadLetterExchange = "enlistment.dlx"
	DeadLetterQueue    = "enlistment.dead"
)

// RoutingKey builds the key publishers stamp on every message:
// site.<siteId>.room.<roomId>.<eventName>.
func RoutingKey(siteID, roomID string, name EventName) string {
	return fmt.Sprintf("site.%s.room.%s.%s", siteID, roomID, name)
}

// BindAnyRoom matches an event name across all sites and rooms.
func BindAnyRoom(name EventName) string {
	return "site.*.room.*." + string(name)
}

// BindAll matches every message on an exchange.
const BindAll = "site.#"

// Exchange returns the exchange a name is published on.
func (n EventName) Exchange() string {
	if n.IsCommand() {
		return CommandsExchange
	}
	return EventsExchange
}
