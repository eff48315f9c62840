package domain

// VideoInput describes one selectable camera/capture device.
// Label may be blank before capture permission has been granted.
type VideoInput struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label,omitempty"`
}
