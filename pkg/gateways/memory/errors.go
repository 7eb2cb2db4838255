package memory

import "github.com/leadrun/leadrun/pkg/gateways"

// ErrLeadNotFound aliases the gateway sentinel; kept so existing callers of
// the memory package keep working.
var ErrLeadNotFound = gateways.ErrLeadNotFound
