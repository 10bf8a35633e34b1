package gpio

import "sync"

// FakePin is a test double for the button input.
type FakePin struct {
	mu sync.Mutex

	// pressed is the level returned by Read.
	pressed bool

	// readError, if set, is returned by Read.
	readError error

	// reads counts calls to Read.
	reads int
}

// NewFakePin creates a FakePin at the given level.
func NewFakePin(pressed bool) *FakePin {
	return &FakePin{pressed: pressed}
}

// Read returns the current scripted level.
func (f *FakePin) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readError != nil {
		return false, f.readError
	}
	return f.pressed, nil
}

// SetPressed changes the level returned by Read.
func (f *FakePin) SetPressed(pressed bool) {
	f.mu.Lock()
	f.pressed = pressed
	f.mu.Unlock()
}

// SetReadError makes Read fail with err (nil clears it).
func (f *FakePin) SetReadError(err error) {
	f.mu.Lock()
	f.readError = err
	f.mu.Unlock()
}

// Reads returns the number of Read calls.
func (f *FakePin) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// FakeOutput records output actuations for test assertions.
type FakeOutput struct {
	// On is the current output level.
	On bool

	// Sets contains the values passed to Set.
	Sets []bool

	// Toggles counts calls to Toggle.
	Toggles int

	// Err, if set, is returned by Set and Toggle.
	Err error
}

// NewFakeOutput creates a FakeOutput that starts inactive.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the value.
func (f *FakeOutput) Set(on bool) error {
	if f.Err != nil {
		return f.Err
	}
	f.Sets = append(f.Sets, on)
	f.On = on
	return nil
}

// Toggle inverts the output.
func (f *FakeOutput) Toggle() error {
	if f.Err != nil {
		return f.Err
	}
	f.Toggles++
	f.On = !f.On
	return nil
}
