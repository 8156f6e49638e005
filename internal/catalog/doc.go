// Package catalog stores the metadata of saved photos as a JSON document
// and keeps compressed copies of the photos under the data directory.
//
// Saving a photo attaches the current location when one is known and warms
// the image cache for it. Search and filters run over the in-memory list.
package catalog
