// Package thumbnail generates and stores WebP thumbnails keyed by content.
//
// A thumbnail lives at
//
//	<data>/thumbnails/<ephemeral | library id>/<first 3 of cas id>/<cas id>.webp
//
// so identical content shares one file per library, and no directory holds
// more than a fraction of the cache.
//
// Images are decoded in process, shrunk to at most TargetPixels with a linear
// filter, rotated according to their EXIF orientation and encoded as lossy
// WebP at TargetQuality. Documents are first rendered to an image by an
// external tool and videos are handed to an external frame extractor; see
// package media.
//
// Generate is safe for concurrent use. Two concurrent generations of the same
// cas id may both do the work; each writes identical bytes atomically.
// GenerateSingle adds a Throttle for ad-hoc requests and must not be called
// in a loop; GenerateBatch is the bulk entry point.
package thumbnail
