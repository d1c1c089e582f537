package mcpserver

// FrontMatterFormat describes the front-matter lines a post may carry.
const FrontMatterFormat = `# Front-Matter Format

A post is a Markdown file that may open with a front-matter block fenced by
` + "`---`" + ` lines. Inside the block each line is matched against a fixed
set of prefixes; anything else is ignored. The block is not decoded as YAML.

` + "```" + `markdown
---
id: hello-world
title: Hello, world
abstract: One sentence shown in post listings.
created: 2024-03-01
tags: go, blogging, notes
---

# Hello, world
` + "```" + `

## Rules

1. Prefixes are case-sensitive and must start the line: ` + "`id:`" + `, ` + "`title:`" + `,
   ` + "`abstract:`" + `, ` + "`created:`" + `, ` + "`tags:`" + `. The value is the rest of the line, trimmed.
2. **id** is lowercased. Without it the id is the file path up to its first
   dot (` + "`2024/intro.md`" + ` becomes ` + "`2024/intro`" + `).
3. **created** must be ` + "`YYYY-MM-DD`" + `. Any other value makes the post fail to load.
4. **tags** is one comma-separated line. Each tag is trimmed; case and order are kept
   and empty entries (` + "`a,,b`" + `) are kept too.
5. When a field appears twice, the last line wins.
6. The table of contents is built from every line starting with ` + "`#`" + `,
   including lines inside fenced code blocks.
`
