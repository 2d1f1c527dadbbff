// Package httpapi is the JSON HTTP boundary over goGate.Engine.
//
// Routes:
//
//	POST /auth/login                          {handle, password}
//	POST /auth/forgot-password                {email}
//	POST /auth/verification-code/{token}      {code}
//	POST /auth/reset-password/{token}         {newPassword}
//	POST /auth/change-password     (bearer)   {currentPassword, newPassword}
//	GET  /auth/activation/{token}
//	GET  /auth/me                  (bearer, read:profile)
//	POST /auth/accounts            (bearer, create:account)
//	PUT  /auth/accounts/{id}/status (bearer, update:account) {active}
//	GET  /healthz
//
// Errors are {"error": kind} where kind is goGate.ErrorKind of the failure.
package httpapi
