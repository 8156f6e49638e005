// Package location resolves the position attached to newly saved photos.
package location
