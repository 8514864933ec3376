package sbi

// ResetType selects the kind of system reset requested from the firmware.
type ResetType uint32

// Reset types defined by the SRST extension.
const (
	ResetShutdown ResetType = iota
	ResetCold
	ResetWarm
)

// ResetReason is reported to the firmware together with the reset request.
type ResetReason uint32

// Reset reasons defined by the SRST extension.
const (
	ReasonNone ResetReason = iota
	ReasonSystemFailure
)

// SystemReset asks the firmware to reset the system. It only returns if the
// firmware rejected the request, in which case the SBI status is returned.
func SystemReset(resetType ResetType, reason ResetReason) Error {
	_, err := Call(eidSystemReset, 0, uintptr(resetType), uintptr(reason), 0)
	if err == Success {
		// The firmware reported success but the hart is still
		// running.
		err = ErrFailed
	}
	return err
}

// Shutdown powers the system off.
func Shutdown() Error {
	return SystemReset(ResetShutdown, ReasonNone)
}

// PanicReset powers the system off, reporting a system failure to the
// firmware.
func PanicReset() Error {
	return SystemReset(ResetShutdown, ReasonSystemFailure)
}
