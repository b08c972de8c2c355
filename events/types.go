package events

// Event is the closed set of state-change notifications broadcast on the
// Bus. Each variant carries only value data; events are constructed once,
// published once and never mutated afterwards.
type Event interface {
	// Type returns the kebab-case tag of the variant, used for SSE
	// envelopes and metrics labels.
	Type() string

	isEvent()
}

// PopupType identifies which popup a show/hide request targets.
type PopupType string

const (
	PopupBluetooth    PopupType = "bluetooth"
	PopupWifi         PopupType = "wifi"
	PopupMediaControl PopupType = "media-control"
	PopupPower        PopupType = "power"
)

// Valid reports whether p is one of the known popup types.
func (p PopupType) Valid() bool {
	switch p {
	case PopupBluetooth, PopupWifi, PopupMediaControl, PopupPower:
		return true
	}
	return false
}

// WorkspaceInfo describes one compositor workspace.
type WorkspaceInfo struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name,omitempty"`
	Active  bool   `json:"active"`
	Focused bool   `json:"focused"`
}

// WifiNetworkInfo describes one visible wireless network.
type WifiNetworkInfo struct {
	SSID      string `json:"ssid"`
	Signal    uint8  `json:"signal"`
	Secured   bool   `json:"secured"`
	Connected bool   `json:"connected"`
}

// BluetoothDeviceInfo describes one known bluetooth device.
type BluetoothDeviceInfo struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Paired    bool   `json:"paired"`
}

// VolumeChanged is published after every audio mutation and carries the
// full post-mutation state, not a delta.
type VolumeChanged struct {
	Level float64 `json:"level"`
	Muted bool    `json:"muted"`
}

type BrightnessChanged struct {
	Level float64 `json:"level"`
}

type CPUUsageChanged struct {
	Usage float64 `json:"usage"`
}

type MemoryUsageChanged struct {
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	Percent float64 `json:"percent"`
}

type TemperatureChanged struct {
	Celsius int `json:"celsius"`
}

type WifiStateChanged struct {
	Enabled bool `json:"enabled"`
}

type WifiNetworkConnected struct {
	SSID string `json:"ssid"`
}

type WifiNetworkDisconnected struct{}

type WifiNetworksUpdated struct {
	Networks []WifiNetworkInfo `json:"networks"`
}

type BluetoothStateChanged struct {
	Enabled bool `json:"enabled"`
}

type BluetoothDeviceConnected struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type BluetoothDeviceDisconnected struct {
	Address string `json:"address"`
}

type BluetoothDevicesUpdated struct {
	Devices []BluetoothDeviceInfo `json:"devices"`
}

// MediaPlayerChanged reports the active MPRIS player. Player is empty when
// the last player went away.
type MediaPlayerChanged struct {
	Player string `json:"player,omitempty"`
}

type MediaTrackChanged struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
}

type MediaPlaybackChanged struct {
	Playing bool `json:"playing"`
}

type MediaVolumeChanged struct {
	Volume float64 `json:"volume"`
}

type BatteryChanged struct {
	Percentage float64 `json:"percentage"`
	State      string  `json:"state"`
	Charging   bool    `json:"charging"`
}

type WorkspaceChanged struct {
	ID uint32 `json:"id"`
}

type WorkspacesUpdated struct {
	Workspaces []WorkspaceInfo `json:"workspaces"`
}

type PopupRequested struct {
	Popup PopupType `json:"popup"`
}

type PopupClosed struct {
	Popup PopupType `json:"popup"`
}

func (VolumeChanged) Type() string               { return "volume-changed" }
func (BrightnessChanged) Type() string           { return "brightness-changed" }
func (CPUUsageChanged) Type() string             { return "cpu-usage-changed" }
func (MemoryUsageChanged) Type() string          { return "memory-usage-changed" }
func (TemperatureChanged) Type() string          { return "temperature-changed" }
func (WifiStateChanged) Type() string            { return "wifi-state-changed" }
func (WifiNetworkConnected) Type() string        { return "wifi-network-connected" }
func (WifiNetworkDisconnected) Type() string     { return "wifi-network-disconnected" }
func (WifiNetworksUpdated) Type() string         { return "wifi-networks-updated" }
func (BluetoothStateChanged) Type() string       { return "bluetooth-state-changed" }
func (BluetoothDeviceConnected) Type() string    { return "bluetooth-device-connected" }
func (BluetoothDeviceDisconnected) Type() string { return "bluetooth-device-disconnected" }
func (BluetoothDevicesUpdated) Type() string     { return "bluetooth-devices-updated" }
func (MediaPlayerChanged) Type() string          { return "media-player-changed" }
func (MediaTrackChanged) Type() string           { return "media-track-changed" }
func (MediaPlaybackChanged) Type() string        { return "media-playback-changed" }
func (MediaVolumeChanged) Type() string          { return "media-volume-changed" }
func (BatteryChanged) Type() string              { return "battery-changed" }
func (WorkspaceChanged) Type() string            { return "workspace-changed" }
func (WorkspacesUpdated) Type() string           { return "workspaces-updated" }
func (PopupRequested) Type() string              { return "popup-requested" }
func (PopupClosed) Type() string                 { return "popup-closed" }

func (VolumeChanged) isEvent()               {}
func (BrightnessChanged) isEvent()           {}
func (CPUUsageChanged) isEvent()             {}
func (MemoryUsageChanged) isEvent()          {}
func (TemperatureChanged) isEvent()          {}
func (WifiStateChanged) isEvent()            {}
func (WifiNetworkConnected) isEvent()        {}
func (WifiNetworkDisconnected) isEvent()     {}
func (WifiNetworksUpdated) isEvent()         {}
func (BluetoothStateChanged) isEvent()       {}
func (BluetoothDeviceConnected) isEvent()    {}
func (BluetoothDeviceDisconnected) isEvent() {}
func (BluetoothDevicesUpdated) isEvent()     {}
func (MediaPlayerChanged) isEvent()          {}
func (MediaTrackChanged) isEvent()           {}
func (MediaPlaybackChanged) isEvent()        {}
func (MediaVolumeChanged) isEvent()          {}
func (BatteryChanged) isEvent()              {}
func (WorkspaceChanged) isEvent()            {}
func (WorkspacesUpdated) isEvent()           {}
func (PopupRequested) isEvent()              {}
func (PopupClosed) isEvent()                 {}
