// Package jwt issues and verifies stateless session credentials.
//
// A credential carries the account id as "sub", the role name as "role", and "iat"/"exp".
// Verification is a pure function of the token, the configured keys, and the clock.
package jwt
