package acp

// Content block kinds used in prompts.
const (
	ContentTypeText         = "text"
	ContentTypeImage        = "image"
	ContentTypeResource     = "resource"
	ContentTypeResourceLink = "resource_link"
)

// ContentBlock is one element of a prompt. The Type field selects which of
// the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// resource
	Resource *EmbeddedResource `json:"resource,omitempty"`

	// resource_link
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`
}

// EmbeddedResource carries file contents inline with a prompt. Text and Blob
// are mutually exclusive; Blob is base64.
type EmbeddedResource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ImageBlock builds an image content block from base64 data.
func ImageBlock(data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentTypeImage, Data: data, MimeType: mimeType}
}

// ResourceBlock embeds file contents in a prompt.
func ResourceBlock(res EmbeddedResource) ContentBlock {
	return ContentBlock{Type: ContentTypeResource, Resource: &res}
}

// ResourceLinkBlock references a file by URI without embedding it.
func ResourceLinkBlock(uri, name string) ContentBlock {
	return ContentBlock{Type: ContentTypeResourceLink, URI: uri, Name: name}
}
