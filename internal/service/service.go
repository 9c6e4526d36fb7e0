// Package service implements the gateway operations: identity resolution,
// input sanitization and authorization composed around the record store.
//
// Every method takes the caller explicitly and runs as one transaction, so a
// user record created on first contact is rolled back if the operation that
// triggered it fails.
package service

import (
	"github.com/hypeshelf/hypeshelf/internal/authz"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/repository"
)

// Gateway bundles the collaborators shared by all services.
type Gateway struct {
	Tx       repository.Transactor
	Resolver *identity.Resolver
	Policy   *authz.Policy
}
