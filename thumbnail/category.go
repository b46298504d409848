package thumbnail

import (
	"sort"
	"strings"
)

// Category is the media family of a file extension.
type Category uint8

const (
	// CategoryUnsupported covers everything without a generation strategy.
	CategoryUnsupported Category = iota
	// CategoryImage covers raster and vector images.
	CategoryImage
	// CategoryDocument covers paged documents.
	CategoryDocument
	// CategoryVideo covers video containers.
	CategoryVideo
)

func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryDocument:
		return "document"
	case CategoryVideo:
		return "video"
	default:
		return "unsupported"
	}
}

type extensionInfo struct {
	category Category
	// thumbnailable is false for known extensions this build cannot decode.
	thumbnailable bool
}

var extensions = map[string]extensionInfo{
	"jpg":   {CategoryImage, true},
	"jpeg":  {CategoryImage, true},
	"png":   {CategoryImage, true},
	"webp":  {CategoryImage, true},
	"gif":   {CategoryImage, true},
	"svg":   {CategoryImage, true},
	"bmp":   {CategoryImage, true},
	"heic":  {CategoryImage, false},
	"heics": {CategoryImage, false},
	"heif":  {CategoryImage, false},
	"heifs": {CategoryImage, false},
	"avif":  {CategoryImage, false},
	"ico":   {CategoryImage, false},
	"tif":   {CategoryImage, true},
	"tiff":  {CategoryImage, true},

	"pdf":     {CategoryDocument, true},
	"doc":     {CategoryDocument, false},
	"docx":    {CategoryDocument, false},
	"odt":     {CategoryDocument, false},
	"ods":     {CategoryDocument, false},
	"odp":     {CategoryDocument, false},
	"ppt":     {CategoryDocument, false},
	"pptx":    {CategoryDocument, false},
	"xls":     {CategoryDocument, false},
	"xlsx":    {CategoryDocument, false},
	"rtf":     {CategoryDocument, false},
	"key":     {CategoryDocument, false},
	"pages":   {CategoryDocument, false},
	"numbers": {CategoryDocument, false},

	"3gp":   {CategoryVideo, true},
	"asf":   {CategoryVideo, true},
	"avi":   {CategoryVideo, true},
	"f4v":   {CategoryVideo, true},
	"flv":   {CategoryVideo, true},
	"m4v":   {CategoryVideo, true},
	"mjpeg": {CategoryVideo, true},
	"mkv":   {CategoryVideo, true},
	"mov":   {CategoryVideo, true},
	"mp4":   {CategoryVideo, true},
	"mpe":   {CategoryVideo, true},
	"mpeg":  {CategoryVideo, true},
	"mxf":   {CategoryVideo, true},
	"ogv":   {CategoryVideo, true},
	"qt":    {CategoryVideo, true},
	"vob":   {CategoryVideo, true},
	"webm":  {CategoryVideo, true},
	"wm":    {CategoryVideo, true},
	"wmv":   {CategoryVideo, true},
	"wtv":   {CategoryVideo, true},
	// Known containers excluded from frame extraction.
	"hevc": {CategoryVideo, false},
	"m2ts": {CategoryVideo, false},
	"m2v":  {CategoryVideo, false},
	"mpg":  {CategoryVideo, false},
	"mts":  {CategoryVideo, false},
	"swf":  {CategoryVideo, false},
	"ts":   {CategoryVideo, false},
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Classify maps a file extension, with or without the dot, to its category.
func Classify(ext string) Category {
	return extensions[normalizeExtension(ext)].category
}

// SupportsThumbnailing reports whether a thumbnail can be generated for ext.
// Video extensions only qualify when videoEnabled is set.
func SupportsThumbnailing(ext string, videoEnabled bool) bool {
	info, ok := extensions[normalizeExtension(ext)]
	if !ok || !info.thumbnailable {
		return false
	}
	if info.category == CategoryVideo {
		return videoEnabled
	}
	return true
}

// ThumbnailableExtensions lists, sorted, every extension SupportsThumbnailing
// accepts.
func ThumbnailableExtensions(videoEnabled bool) []string {
	var out []string
	for ext := range extensions {
		if SupportsThumbnailing(ext, videoEnabled) {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// shouldRotate reports whether EXIF orientation applies to ext. The HEIF
// family carries its own transform properties, so EXIF orientation is ignored.
func shouldRotate(ext string) bool {
	switch normalizeExtension(ext) {
	case "heic", "heics", "heif", "heifs", "avif":
		return false
	default:
		return true
	}
}
