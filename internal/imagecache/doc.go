// Package imagecache keeps a disk-backed cache of derived images. For each
// source image it stores a thumbnail and a compressed variant, tracks them
// in a JSON index, checks the files still exist on every read, and evicts
// the oldest fifth of the entries whenever the derived files outgrow the
// configured budget. Only one process may open a directory for writing;
// others can open it ReadOnly.
//
// Layout under the data directory:
//
//	thumbnails/thumb_<ts>.jpg
//	compressed/comp_<ts>.jpg
//	image_cache.json
//	.lock      held by the one writer process
//	.staging/  derivations in progress
package imagecache
