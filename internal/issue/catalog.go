package issue

import (
	"slices"
	"strings"
)

var catalog = map[Code]string{
	CodeMissingBackground: `Missing Background Layer

Your questline frame needs a layer named "BG" that contains the background image.

How to fix:
1. Add a frame named "BG" inside your questline
2. Place your background image in this frame`,

	CodeTooFewQuests: `Not Enough Quests

You need at least 3 quests in your questline.

How to fix:
1. Add more quest instances to your questline
2. Make sure each quest has a unique name`,

	CodeTooManyQuests: `Too Many Quests

You can have a maximum of 20 quests in your questline.

How to fix:
1. Remove some quest instances
2. Keep only the quests you need`,

	CodeDuplicateQuestKey: `Duplicate Quest Names

Two or more quests have the same name.

How to fix:
1. Give each quest a unique name
2. Check the "questKey" property in each quest instance`,

	CodeInvalidQuestKey: `Invalid Quest Name

Quest names can only contain lowercase letters, numbers, and hyphens.

How to fix:
1. Use only lowercase letters (a-z)
2. Use numbers (0-9)
3. Use hyphens (-) instead of spaces
4. Examples: "quest-1", "daily-challenge", "bonus-round"`,

	CodeDoubleWhitespace: `Invalid Quest Name

Quest name contains double spaces.

How to fix:
1. Remove extra spaces from the quest name
2. Use single spaces or hyphens instead`,

	CodeOutOfBounds: `Quest Positioned Outside Frame

This quest is positioned outside the questline frame.

How to fix:
1. Move the quest inside the questline frame
2. Make sure the entire quest is visible within the frame`,

	CodeNotInsideParent: `Quest Not Fully Inside Frame

This quest extends beyond the questline frame boundaries.

How to fix:
1. Resize or reposition the quest
2. Make sure it fits completely within the frame`,

	CodeAutoLayoutEnabled: `Auto Layout Must Be Disabled

This quest has auto layout enabled, which can cause positioning issues.

How to fix:
1. Select the quest instance
2. In the right panel, turn off "Auto Layout"
3. Use absolute positioning instead`,

	CodeMissingActiveVariant: `Missing Quest States

This quest component is missing required states.

How to fix:
1. Make sure your quest component has "locked", "active", "unclaimed", and "completed" states
2. The "active" state is mandatory
3. Check the component properties in the editor`,

	CodeMissingQuestKey: `Missing Quest Name

This quest doesn't have a name assigned.

How to fix:
1. Select the quest instance
2. In the right panel, find the "questKey" property
3. Enter a unique name for this quest`,

	CodeImageExportFailed: `Image Export Failed

One or more images couldn't be exported.

How to fix:
1. Make sure all images are properly placed in frames
2. Check that images are not corrupted
3. Try re-uploading the images in the editor`,

	CodeValidationFailed: `Validation Error

There's an issue with your questline structure.

How to fix:
1. Check that all quest names are unique
2. Make sure quest names follow the naming rules
3. Verify all quests are properly positioned`,

	CodeUnknown: `Unexpected Error

Something went wrong while processing your questline.

How to fix:
1. Try refreshing the plugin
2. Check that your document is saved
3. Make sure you have the latest version of the plugin`,
}

// Remediation returns the static help text for code. Unknown codes fall
// back to the UNKNOWN text.
func Remediation(code Code) string {
	if msg, ok := catalog[code]; ok {
		return msg
	}
	return catalog[CodeUnknown]
}

// Title returns the first line of the remediation text.
func Title(code Code) string {
	title, _, _ := strings.Cut(Remediation(code), "\n")
	return title
}

// Describe renders the user-facing text for an issue. The raw message is
// appended only for the catch-all and validation-wrapping codes.
func Describe(i Issue) string {
	text := Remediation(i.Code)
	switch i.Code {
	case CodeUnknown, CodeValidationFailed:
		if i.Message != "" {
			text += "\n\nDetails: " + i.Message
		}
	}
	return text
}

// Codes lists every catalogued code in lexical order.
func Codes() []Code {
	out := make([]Code, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Known reports whether code has a catalogue entry.
func Known(code Code) bool {
	_, ok := catalog[code]
	return ok
}
