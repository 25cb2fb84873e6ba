// Package bluesky implements social.Client over the AT Protocol using
// the indigo XRPC client.
//
// Reads go to the public AppView without authentication by default. When an
// identifier and app password are configured, Login creates a session on the
// account's PDS and reads are sent there instead.
package bluesky
