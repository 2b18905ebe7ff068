package lock

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/psylog/internal/common"
)

// Method tags how an unlock happened.
type Method string

const (
	MethodBiometric        Method = "biometric"
	MethodPin              Method = "pin"
	MethodDeviceCredential Method = "device-credential"
	MethodInit             Method = "init"
)

// ParseMethod normalises a host-supplied method tag. The legacy
// "device_credential" spelling is accepted.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")) {
	case MethodBiometric:
		return MethodBiometric, nil
	case MethodPin:
		return MethodPin, nil
	case MethodDeviceCredential:
		return MethodDeviceCredential, nil
	case MethodInit:
		return MethodInit, nil
	}
	return "", fmt.Errorf("%w: unknown unlock method %q", common.ErrValidation, s)
}

// Label is the human-readable name shown in the access history.
func (m Method) Label() string {
	switch m {
	case MethodBiometric:
		return "Biometric"
	case MethodPin:
		return "PIN"
	case MethodDeviceCredential:
		return "Device credential"
	case MethodInit:
		return "Startup"
	default:
		return "Unknown"
	}
}
