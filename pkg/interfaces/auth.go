package interfaces

import "net/url"

// Authenticator is the auth port consulted before a connection is accepted
// FUNCTIONAL DISCOVERY: Returns 0 for anonymous connections; an error means
// the parameters were present but unusable and the upgrade must be refused
type Authenticator interface {
	Authenticate(params url.Values) (int64, error)
}
