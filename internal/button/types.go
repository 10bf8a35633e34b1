// Package button turns raw edge interrupts from the user button into
// classified press events.
//
// Edges only (re)arm a settle alarm on the scheduler; every state transition
// happens in scheduler task context after the pin level has been re-read.
package button

// Event is a classified button event.
type Event string

const (
	EventNone          Event = "NONE"
	EventPressedShort  Event = "PRESSED_SHORT"  // held < long-press threshold, still down
	EventPressedLong   Event = "PRESSED_LONG"   // held >= long-press threshold, still down
	EventReleasedShort Event = "RELEASED_SHORT" // released before the threshold
	EventReleasedLong  Event = "RELEASED_LONG"  // released after the threshold
)

// State is the classifier state.
type State string

const (
	StateIdle            State = "IDLE"
	StateSettlingPress   State = "SETTLING_PRESS"
	StateSettlingRelease State = "SETTLING_RELEASE"
	StateHeldShort       State = "HELD_SHORT"
	StateHeldLong        State = "HELD_LONG"
)

// Listener receives release events.
type Listener interface {
	HandleButton(evt Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(evt Event)

// HandleButton calls f(evt).
func (f ListenerFunc) HandleButton(evt Event) {
	f(evt)
}
