package recordsdk

import (
	"github.com/denisbrodbeck/machineid"
)

// DeviceID is a stable, app-scoped identifier for this machine, sent with
// every request so the server can tell devices of the same account apart.
var DeviceID = resolveDeviceID()

func resolveDeviceID() string {
	id, err := machineid.ProtectedID("recbox")
	if err != nil {
		return "unknown"
	}
	return id
}
