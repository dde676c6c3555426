/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package returnurl

// Result is either Authenticated or LoginRedirect
type Result interface {
	isResult()
}

// Authenticated means the caller has a session; Identity is asserted to the proxy
type Authenticated struct {
	Identity string
}

// LoginRedirect means the caller must log in first; URL is absolute
type LoginRedirect struct {
	URL string
}

func (Authenticated) isResult() {}
func (LoginRedirect) isResult() {}
