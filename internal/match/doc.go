// Package match decides how synthesized audio is reconciled with its
// subtitle cue window: accept, re-synthesize at a higher speed, or rewrite
// the text toward a character budget.
package match
