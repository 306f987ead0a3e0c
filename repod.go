// Package repod implements the core of a package repository management
// system for pacman-style binary packages: version arithmetic, dependency
// constraints and package identity shared by every other package in this
// module.
package repod
