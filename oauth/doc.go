// Package oauth implements the provider half of the authorization-code flow
// with PKCE for a closed set of identity providers.
//
// A [Provider] builds the authorization URL, exchanges a code for a token,
// fetches the user-info document and parses it into an [Identity]. Account
// reconciliation is left to the caller.
package oauth
