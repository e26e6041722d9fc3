// Package parser reads flashcard decks written in markdown.
//
// A deck file holds cards as "Q:" (front), "A:" (back) and optional "C:"
// (context) blocks. Blocks may span several lines. A card ends at a "---"
// line, at the next "Q:" or at the end of the file. The first "# " heading,
// if any, names the deck.
package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	headingPrefix = "# "
	separator     = "---"

	// maxLineSize bounds a single line of a deck file.
	maxLineSize = 1 << 20
)

type field int

const (
	none field = iota
	front
	back
	context
)

// Deck is the parsed content of one markdown file.
type Deck struct {
	Topic string
	Cards []domain.Card
}

// ParseFile parses the file at path. Without a heading the topic is the
// file name minus its extension.
func ParseFile(path string) (Deck, error) {
	file, err := os.Open(path)
	if err != nil {
		return Deck{}, err
	}
	defer file.Close()

	deck, err := Parse(file)
	if err != nil {
		return Deck{}, err
	}
	if deck.Topic == "" {
		deck.Topic = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return deck, nil
}

// Parse reads cards from r.
func Parse(r io.Reader) (Deck, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishCard()
	if err := scanner.Err(); err != nil {
		return Deck{}, err
	}
	return p.deck, nil
}

type deckParser struct {
	deck    Deck
	current domain.Card
	reading field
	block   []string
}

func (p *deckParser) line(line string) {
	switch {
	case line == separator:
		p.finishCard()
	case strings.HasPrefix(line, headingPrefix) && p.reading == none && p.deck.Topic == "":
		p.deck.Topic = strings.TrimSpace(line[len(headingPrefix):])
	case strings.HasPrefix(line, frontPrefix):
		// A new front always starts a new card.
		p.finishCard()
		p.start(front, line[len(frontPrefix):])
	case strings.HasPrefix(line, backPrefix):
		p.start(back, line[len(backPrefix):])
	case strings.HasPrefix(line, contextPrefix):
		p.start(context, line[len(contextPrefix):])
	case p.reading != none:
		p.block = append(p.block, line)
	}
}

func (p *deckParser) start(f field, rest string) {
	p.flushBlock()
	p.reading = f
	p.block = append(p.block, strings.TrimPrefix(rest, " "))
}

// flushBlock stores the lines read so far into the field being read.
func (p *deckParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	switch p.reading {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case context:
		p.current.Context = content
	}
	p.block = nil
}

func (p *deckParser) finishCard() {
	p.flushBlock()
	if p.current.Front != "" {
		p.deck.Cards = append(p.deck.Cards, p.current)
	}
	p.current = domain.Card{}
	p.reading = none
}
