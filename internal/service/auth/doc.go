// Package auth implements passwordless magic-link authentication for the
// admin dashboard.
//
// The service layer owns token generation, expiry, single-use redemption,
// and session lifecycle. It depends on the repository interface defined in
// this package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package auth
