package status

import "errors"

var (
	ErrUnauthorizedScanner = errors.New("scanner: not authorized to validate tickets")
	ErrTicketNotFound      = errors.New("ticket: ticket not found")
	ErrScanNotFound        = errors.New("scan: scan record not found")
	ErrAlreadyCheckedIn    = errors.New("scan: ticket already has a valid scan")
	ErrNoValidScan         = errors.New("scan: ticket has no valid scan to confirm")
	ErrInvalidTransition   = errors.New("ticket: illegal payment state transition")
)
