// Package jwt signs and verifies the compact tokens carried in the session
// cookie. A token names a server-side session id and expires with the
// cookie; it never carries identity or authorization data.
package jwt
