package richtext

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Block is one Notion block object, ready to be JSON encoded.
type Block = map[string]any

// maxRichTextContent is Notion's limit on the content of one text object.
const maxRichTextContent = 2000

type annotations struct {
	bold, italic, strikethrough, code bool
}

func (a annotations) isSet() bool {
	return a.bold || a.italic || a.strikethrough || a.code
}

type span struct {
	content string
	ann     annotations
	link    string
}

// NotionBlocks converts markdown into Notion blocks. Headings, paragraphs,
// bulleted and numbered lists (nested), fenced code, quotes and rules are
// mapped; bold, italic, strikethrough, inline code and links are kept as
// rich text annotations. Raw HTML is dropped.
func NotionBlocks(src string) []Block {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	source := []byte(src)
	doc := mdRenderer.Parser().Parse(text.NewReader(source))

	c := &notionConverter{source: source}
	return c.blocks(doc)
}

type notionConverter struct {
	source []byte
}

func (c *notionConverter) blocks(parent ast.Node) []Block {
	var out []Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c *notionConverter) block(n ast.Node) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		level := node.Level
		if level > 3 {
			level = 3
		}
		kind := "heading_" + string(rune('0'+level))
		return []Block{typedBlock(kind, Block{"rich_text": c.richText(node)})}

	case *ast.Paragraph, *ast.TextBlock:
		rt := c.richText(node)
		if len(rt) == 0 {
			return nil
		}
		return []Block{typedBlock("paragraph", Block{"rich_text": rt})}

	case *ast.List:
		kind := "bulleted_list_item"
		if node.IsOrdered() {
			kind = "numbered_list_item"
		}
		var items []Block
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			items = append(items, c.listItem(kind, item))
		}
		return items

	case *ast.FencedCodeBlock:
		lang := string(node.Language(c.source))
		return []Block{codeBlock(c.lines(node), lang)}

	case *ast.CodeBlock:
		return []Block{codeBlock(c.lines(node), "")}

	case *ast.Blockquote:
		var rt []map[string]any
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			if len(rt) > 0 {
				rt = append(rt, textObject(span{content: "\n"}))
			}
			rt = append(rt, c.richText(child)...)
		}
		return []Block{typedBlock("quote", Block{"rich_text": rt})}

	case *ast.ThematicBreak:
		return []Block{typedBlock("divider", Block{})}

	default:
		return nil
	}
}

// listItem uses the item's first text block as its own content and nests
// everything after it as children.
func (c *notionConverter) listItem(kind string, item ast.Node) Block {
	body := Block{"rich_text": []map[string]any{}}
	child := item.FirstChild()
	if child != nil {
		switch child.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			body["rich_text"] = c.richText(child)
			child = child.NextSibling()
		}
	}

	var children []Block
	for ; child != nil; child = child.NextSibling() {
		children = append(children, c.block(child)...)
	}
	if len(children) > 0 {
		body["children"] = children
	}
	return typedBlock(kind, body)
}

func (c *notionConverter) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *notionConverter) richText(n ast.Node) []map[string]any {
	var spans []span
	c.collect(n, annotations{}, "", &spans)
	return richTextObjects(spans)
}

func (c *notionConverter) collect(n ast.Node, ann annotations, link string, spans *[]span) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch node := child.(type) {
		case *ast.Text:
			content := string(node.Segment.Value(c.source))
			if node.HardLineBreak() || node.SoftLineBreak() {
				content += "\n"
			}
			*spans = append(*spans, span{content: content, ann: ann, link: link})

		case *ast.String:
			*spans = append(*spans, span{content: string(node.Value), ann: ann, link: link})

		case *ast.Emphasis:
			next := ann
			if node.Level >= 2 {
				next.bold = true
			} else {
				next.italic = true
			}
			c.collect(node, next, link, spans)

		case *extast.Strikethrough:
			next := ann
			next.strikethrough = true
			c.collect(node, next, link, spans)

		case *ast.CodeSpan:
			next := ann
			next.code = true
			c.collect(node, next, link, spans)

		case *ast.Link:
			c.collect(node, ann, string(node.Destination), spans)

		case *ast.AutoLink:
			u := string(node.URL(c.source))
			*spans = append(*spans, span{content: u, ann: ann, link: u})

		case *ast.Image:
			*spans = append(*spans, span{content: string(node.Destination), ann: ann, link: string(node.Destination)})

		case *ast.RawHTML:
			// dropped

		default:
			c.collect(node, ann, link, spans)
		}
	}
}

// richTextObjects merges adjacent spans with identical formatting and splits
// content at Notion's per-object limit.
func richTextObjects(spans []span) []map[string]any {
	var merged []span
	for _, s := range spans {
		if s.content == "" {
			continue
		}
		if last := len(merged) - 1; last >= 0 && merged[last].ann == s.ann && merged[last].link == s.link {
			merged[last].content += s.content
			continue
		}
		merged = append(merged, s)
	}
	if len(merged) > 0 {
		last := len(merged) - 1
		merged[last].content = strings.TrimRight(merged[last].content, "\n")
		if merged[last].content == "" {
			merged = merged[:last]
		}
	}

	out := make([]map[string]any, 0, len(merged))
	for _, s := range merged {
		for _, chunk := range splitRunes(s.content, maxRichTextContent) {
			part := s
			part.content = chunk
			out = append(out, textObject(part))
		}
	}
	return out
}

func textObject(s span) map[string]any {
	t := map[string]any{"content": s.content}
	if s.link != "" {
		t["link"] = map[string]any{"url": s.link}
	}
	obj := map[string]any{"type": "text", "text": t}
	if s.ann.isSet() {
		obj["annotations"] = map[string]any{
			"bold":          s.ann.bold,
			"italic":        s.ann.italic,
			"strikethrough": s.ann.strikethrough,
			"code":          s.ann.code,
		}
	}
	return obj
}

func typedBlock(kind string, body Block) Block {
	return Block{"object": "block", "type": kind, kind: body}
}

func codeBlock(content, lang string) Block {
	if lang == "" {
		lang = "plain text"
	}
	return typedBlock("code", Block{
		"rich_text": richTextObjects([]span{{content: content}}),
		"language":  lang,
	})
}

// PlainParagraphs returns one paragraph block per non-empty line of s,
// without markdown interpretation.
func PlainParagraphs(s string) []Block {
	var out []Block
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, typedBlock("paragraph", Block{
			"rich_text": richTextObjects([]span{{content: line}}),
		}))
	}
	return out
}

func splitRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
