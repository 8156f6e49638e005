// Package transcoder resizes and recompresses still images into new files.
//
// Two backends implement Transcoder:
//   - Vips: libvips through govips, shrinking during decode
//   - Imaging: pure Go through disintegration/imaging
//
// Output files are written to a staging directory under a random name; the
// caller moves them into place or deletes them.
package transcoder
