// Package cli implements the negotiator command line: serve, search, doctor
// and version.
package cli
