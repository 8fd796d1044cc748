// Package util holds small generic helpers shared by dockerkit packages.
package util
