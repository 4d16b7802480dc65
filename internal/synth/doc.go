// Package synth drives one subtitle segment through translation, speech
// synthesis, and the duration correction loop.
package synth
