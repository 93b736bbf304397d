// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

package auth

import (
	"crypto/rand"
	"strings"

	"github.com/rivo/uniseg"
	"github.com/samber/oops"
)

// EmojiIDLength is the number of alphabet symbols in an Emoji ID.
const EmojiIDLength = 4

// emojiAlphabet is the closed set of symbols Emoji IDs are drawn from.
// Curated for visual distinctness: no flags, no skin-tone modifiers, no
// ZWJ sequences. Exactly 128 symbols, giving 128^4 (~268M) possible IDs.
var emojiAlphabet = []string{
	"😀", "😁", "😂", "😄", "😅", "😇", "😈", "😉",
	"😊", "😋", "😌", "😍", "😎", "😏", "😗", "😛",
	"😜", "😠", "😢", "😭", "😱", "😴", "🤖", "👻",
	"💀", "🎃", "👀", "👣", "🦴", "🧠", "🦷", "💬",
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼",
	"🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐔",
	"🐧", "🐦", "🐤", "🦆", "🦅", "🦉", "🐺", "🐗",
	"🐴", "🦄", "🐝", "🐛", "🦋", "🐌", "🐞", "🐢",
	"🐍", "🐙", "🦀", "🐠", "🐬", "🐳", "🦈", "🐘",
	"🍏", "🍎", "🍊", "🍋", "🍌", "🍉", "🍇", "🍓",
	"🍒", "🍑", "🍍", "🥝", "🍅", "🥑", "🥕", "🌽",
	"🍄", "🍞", "🧀", "🍔", "🍟", "🍕", "🌮", "🍿",
	"🌵", "🌲", "🌴", "🍀", "🍁", "🌷", "🌹", "🌻",
	"🌸", "🌞", "🌙", "🌟", "🌈", "⚡", "🔥", "🌊",
	"⚽", "🏀", "🎾", "🎲", "🎯", "🎸", "🥁", "🎨",
	"🚗", "🚌", "🚀", "⛵", "🎁", "🎈", "🔑", "⏰",
}

// emojiAlphabetSet enables O(1) membership checks during validation.
var emojiAlphabetSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(emojiAlphabet))
	for _, symbol := range emojiAlphabet {
		set[symbol] = struct{}{}
	}
	return set
}()

// ValidEmojiID reports whether id is a well-formed Emoji ID: exactly
// EmojiIDLength user-perceived grapheme clusters, each a member of the
// alphabet. Segmentation uses grapheme clusters rather than bytes or
// runes since alphabet symbols may span multiple Unicode scalar values.
func ValidEmojiID(id string) bool {
	if id == "" {
		return false
	}

	count := 0
	graphemes := uniseg.NewGraphemes(id)
	for graphemes.Next() {
		count++
		if count > EmojiIDLength {
			return false
		}
		if _, ok := emojiAlphabetSet[graphemes.Str()]; !ok {
			return false
		}
	}
	return count == EmojiIDLength
}

// RandomEmojiID draws a uniformly random Emoji ID from the identifier
// space. Each symbol is an independent draw; the 128-entry alphabet
// divides 256 evenly, so a byte modulus introduces no bias.
func RandomEmojiID() (string, error) {
	buf := make([]byte, EmojiIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("EMOJI_ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	var sb strings.Builder
	for _, b := range buf {
		sb.WriteString(emojiAlphabet[int(b)%len(emojiAlphabet)])
	}
	return sb.String(), nil
}
