package mcpserver

// MetadataFormatContract describes the canonical directory record format
// that LLM consumers should follow when reading or editing metadata by hand.
const MetadataFormatContract = `# Dialogoi Metadata Format Contract

Every managed directory in a Dialogoi project carries a ` + "`" + `.dialogoi-meta.yaml` + "`" + `
record describing the files it contains. The project root is the directory
holding ` + "`" + `dialogoi.yaml` + "`" + `.

## Structure

` + "```" + `yaml
readme: README.md                  # OPTIONAL – directory readme file name
files:
  - name: chapter1.md              # REQUIRED – file name within this directory
    type: content                  # REQUIRED – content | setting | subdirectory
    hash: "sha256:ab12..."         # OPTIONAL – content hash at track time
    tags:                          # OPTIONAL – content and setting entries only
      - draft
    references:                    # OPTIONAL – content entries only
      - settings/world.md
  - name: hero.md
    type: setting
    character:                     # OPTIONAL – setting entries only
      importance: main             # main | sub | background
      multiple: false
  - name: arcs
    type: subdirectory             # carries no tags, references, or payloads
` + "```" + `

## Rules

1. **` + "`" + `name` + "`" + ` is the bare file name**, never a path. Each name appears at most
   once per record. Entry order is the display order and is preserved.
2. **` + "`" + `type` + "`" + ` decides what an entry may carry.** Content entries take tags and
   references. Setting entries take tags and at most one of ` + "`" + `character` + "`" + `,
   ` + "`" + `foreshadowing` + "`" + `, or ` + "`" + `glossary: true` + "`" + `. Subdirectory entries carry nothing.
3. **References are project-root-relative** with forward slashes
   (e.g. ` + "`" + `settings/world.md` + "`" + `), never ` + "`" + `./` + "`" + ` or ` + "`" + `../` + "`" + ` forms and never URLs.
4. **Hashes** use the form ` + "`" + `sha256:<hex>` + "`" + `.
5. **Do not list bookkeeping files** (` + "`" + `.dialogoi-meta.yaml` + "`" + `, ` + "`" + `dialogoi.yaml` + "`" + `,
   the readme target) in ` + "`" + `files` + "`" + `.
6. **Encoding** is UTF-8. File and directory names use forward slashes.
`
