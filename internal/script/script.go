// Package script defines the event hook surface exposed to server
// extensions. The daemons fire events through a Hook; the default
// implementation does nothing, so a build without extensions carries no
// scripting cost.
package script

// Event identifies a point in a client's life the hook is told about.
type Event int

const (
	EventShipLogin Event = iota
	EventShipLogout
	EventBlockLogin
	EventBlockLogout
)

// String returns the event name used in logs.
func (e Event) String() string {
	switch e {
	case EventShipLogin:
		return "ship-login"
	case EventShipLogout:
		return "ship-logout"
	case EventBlockLogin:
		return "block-login"
	case EventBlockLogout:
		return "block-logout"
	default:
		return "unknown"
	}
}

// Handle is the view of a client session an extension gets to act on.
type Handle interface {
	Guildcard() uint32
	Version() int
	Privilege() uint8
	Addr() string
	ClientID() int
	IsOnBlock() bool
	Send(pkt []byte) error
	Disconnect()
}

// Hook receives lifecycle events.
type Hook interface {
	OnEvent(ev Event, c Handle)
}

// NopHook is the default Hook; it ignores every event.
type NopHook struct{}

// OnEvent implements Hook.
func (NopHook) OnEvent(Event, Handle) {}
