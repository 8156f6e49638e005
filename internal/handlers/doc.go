// Package handlers provides HTTP request handlers for the photo gallery API.
//
// It includes handlers for:
//   - Listing, filtering, uploading, renaming and deleting photos
//   - Serving stored photos and their cached thumbnail and compressed variants
//   - Inspecting, configuring, warming, clearing and pruning the image cache
//   - Health checks, version and Prometheus metrics
package handlers
