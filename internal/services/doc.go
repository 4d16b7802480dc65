// Package services defines the shared error taxonomy and context keys used
// by the synthesis pipeline and its provider clients.
package services
