// Package ime provides the key model and the Vietnamese Telex composer.
//
// # Architecture Overview
//
// Platform layers (the Gio window, the terminal UI, the playback scheduler)
// normalise their events into Key values. The input router decides whether a
// key goes straight to the word tree or through the Composer:
//
//	Key Event → Router → Composer → Result
//	                ↓                 ↓
//	          direct emit     emit / replace / drop
//	                ↓                 ↓
//	              [word tree + width resolution]
//
// # Telex
//
// Telex spells diacritics with plain ASCII letters typed after the base:
//
//	┌──────────┬───────────────────────────────┐
//	│ Keys     │ Result                        │
//	├──────────┼───────────────────────────────┤
//	│ aa ee oo │ â ê ô                         │
//	│ dd       │ đ                             │
//	│ aw ow uw │ ă ơ ư                         │
//	│ s f r x j│ acute grave hook tilde dot    │
//	└──────────┴───────────────────────────────┘
//
// Modifiers keep the composition open, so "aas" yields ấ and "ows" yields ớ.
// A tone key closes it. A tone key that has no form for the pending base is
// swallowed: "ds" yields d, not ds.
//
// # Thread Safety
//
// Composer is safe for concurrent use, though the router serialises access to
// it so that a keystroke and its tree mutation happen together.
package ime
