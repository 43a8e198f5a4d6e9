// Package formats provides codecs for terrain elevation rasters and
// compiled surface texture sets.
package formats
