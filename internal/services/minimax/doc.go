// Package minimax wraps the MiniMax t2a_v2 speech synthesis API.
package minimax
