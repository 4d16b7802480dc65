// Package translate wraps a chat-completion endpoint for subtitle
// translation and length-targeted rewrites.
package translate
