package app

// Control messages exchanged with the surrounding shell.
const (
	ControlToggleSidebar   = "toggleSidebar"
	ControlSettingsChanged = "settingsChanged"
)

// PlatformBridge adapts whatever hosts the engine: inbound control messages
// and the outbound request to open the settings UI. Availability is checked
// once at engine construction; an unavailable bridge puts the engine in
// detached mode where it attaches no listeners and every operation no-ops.
type PlatformBridge interface {
	Available() bool
	OnControl(handler func(name string))
	OpenSettings() error
}

// FuncBridge is a PlatformBridge assembled from functions; the CLI and tests
// use it. Nil fields behave as available no-ops.
type FuncBridge struct {
	AvailableFn    func() bool
	OnControlFn    func(func(string))
	OpenSettingsFn func() error
}

func (b *FuncBridge) Available() bool {
	if b.AvailableFn == nil {
		return true
	}
	return b.AvailableFn()
}

func (b *FuncBridge) OnControl(handler func(string)) {
	if b.OnControlFn != nil {
		b.OnControlFn(handler)
	}
}

func (b *FuncBridge) OpenSettings() error {
	if b.OpenSettingsFn == nil {
		return nil
	}
	return b.OpenSettingsFn()
}
