// Package util holds small internal helpers shared across brigade packages.
package util
