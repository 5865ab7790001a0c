package mcpserver

// ArchiveFormatContract describes the Markdown archives written next to
// canvases, so LLM consumers can read and edit them safely.
const ArchiveFormatContract = `# Canvas Archive Format

Cards with the archive color are moved off a canvas into a sibling file
named after the canvas: ` + "`" + `boards/plan.canvas` + "`" + ` archives into
` + "`" + `boards/plan Archive.md` + "`" + `.

## Structure

` + "```" + `markdown
---

kanban-plugin: basic

---

## Backlog
- [ ] first card<br>second line of the card
- [ ] another card

## Uncategorized
- [ ] card that was outside every group
` + "```" + `

## Rules

1. **Header.** The file starts with the kanban metadata block shown above.
   It is added when missing.
2. **Sections** are level-2 headings (` + "`" + `## name` + "`" + `). The name is the label
   of the smallest group that contained the card on the canvas.
3. **Uncategorized** collects cards that were not inside any labelled group.
4. **Entries** are unchecked task items. Line breaks inside a card become
   ` + "`" + `<br>` + "`" + `, so every card is exactly one line.
5. **Order.** New entries go directly below their heading, above older ones.
   Sections that do not exist yet are appended at the end of the file.
6. **Everything else is preserved.** Text that is not a level-2 heading is
   never rewritten, including checked items and other heading levels.
7. **Archiving is not idempotent.** Archiving the same card twice writes it twice.
`
