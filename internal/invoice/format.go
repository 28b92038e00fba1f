package invoice

import (
	"path/filepath"
	"strings"
)

// Format tags the encoding of a RawDocument
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatHEIC Format = "heic"
	FormatText Format = "txt"
)

// FormatFromFilename maps a file extension to a Format, "" when unknown
func FormatFromFilename(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".heic", ".heif":
		return FormatHEIC
	case ".txt":
		return FormatText
	}
	return ""
}

// FormatFromContentType maps a MIME type to a Format, "" when unknown
func FormatFromContentType(contentType string) Format {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "application/pdf":
		return FormatPDF
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/heic", "image/heif":
		return FormatHEIC
	case "text/plain":
		return FormatText
	}
	return ""
}

// ContentType is the MIME type used when serving a stored document
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatHEIC:
		return "image/heic"
	case FormatText:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
