/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package jwt

import "time"

// Signer handles token signing and validation
type Signer interface {
	GenerateToken(identity string, sessionStart time.Time) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}
