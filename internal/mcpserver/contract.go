package mcpserver

// StructureContract describes how a questline frame must be laid out in the
// document so that scanning and export succeed.
const StructureContract = `# Questline Structure Contract

A questline is one frame in the design document. The scanner reads exactly
one selected questline and turns it into a positions manifest plus one PNG
per quest state.

## Frame

- The root is a FRAME whose name starts with ` + "`" + `Questline:` + "`" + ` (case-insensitive,
  surrounding whitespace ignored). The rest of the name becomes the
  questline id: lower-cased, whitespace collapsed to ` + "`" + `-` + "`" + `, anything
  outside ` + "`" + `[a-z0-9-]` + "`" + ` removed. ` + "`" + `Questline: Summer Event` + "`" + ` -> ` + "`" + `summer-event` + "`" + `.
- Select exactly one questline frame before scanning.
- The frame size becomes ` + "`" + `frameSize` + "`" + ` in the manifest.

## Background

- A layer named ` + "`" + `BG` + "`" + ` (any case) anywhere below the frame. The first one
  found is rendered as ` + "`" + `questline-bg.png` + "`" + `.
- A missing background is a warning during scan and fails the export.

## Quests

Only direct children of the frame are considered. Between 3 and 20 quests
are required.

` + "```" + `text
Quest (component instance with a State property)
├── Properties
│   └── questKey      (text layer, its characters are the key)
└── Visuals
    └── Image         (the rendered layer)
` + "```" + `

1. **Key.** Read from a text layer whose name contains ` + "`" + `questkey` + "`" + ` inside a
   ` + "`" + `Properties` + "`" + ` child. Older files may use a component property whose name
   starts with ` + "`" + `questKey` + "`" + `, or the first text child of the quest.
2. **Key format.** Lower-case letters, digits and hyphens only
   (` + "`" + `^[a-z0-9-]+$` + "`" + `). Keys must be unique within the questline.
3. **Image.** If ` + "`" + `Visuals` + "`" + ` holds exactly one ` + "`" + `Image` + "`" + ` child, only that layer is
   rendered. If ` + "`" + `Visuals` + "`" + ` holds several layers, the whole group is rendered
   (` + "`" + `isFlattened: true` + "`" + `). Without ` + "`" + `Visuals` + "`" + `, the first ` + "`" + `Image` + "`" + ` layer with an
   image fill is used.
4. **States.** Instances must expose a ` + "`" + `State` + "`" + ` property with the variants
   ` + "`" + `locked` + "`" + `, ` + "`" + `active` + "`" + `, ` + "`" + `unclaimed` + "`" + ` and ` + "`" + `completed` + "`" + `. The original value is
   restored after every capture.
5. **Geometry.** ` + "`" + `x` + "`" + ` and ` + "`" + `y` + "`" + ` are the image layer's position relative to the
   frame; ` + "`" + `w` + "`" + `, ` + "`" + `h` + "`" + ` and ` + "`" + `rotation` + "`" + ` are the image layer's own.

## Bundle

` + "```" + `text
<questlineId>/
├── positions.json
├── questline-bg.png
├── quest-<key>-locked.png
├── quest-<key>-active.png
├── quest-<key>-unclaimed.png
└── quest-<key>-completed.png
` + "```" + `

A bundle holds exactly ` + "`" + `1 + 4 * quests` + "`" + ` images. Use ` + "`" + `explain_issue` + "`" + ` for the fix
steps of any issue code.
`
