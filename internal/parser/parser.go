// Package parser extracts cards from markdown notes.
//
// A text card is a question followed by an answer:
//
//	Q: What is the capital of France?
//	A: Paris
//
// A code card has a question, a snippet and the output the snippet prints:
//
//	Q: What does this print?
//	CODE: console.log([1, 2].length)
//	OUT: 2
//
// Every field may continue over several lines. A new "Q:" or a "---" line ends a card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

type field int

const (
	seeking field = iota
	readingQuestion
	readingAnswer
	readingCode
	readingOutput
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", readingQuestion},
	{"A:", readingAnswer},
	{"CODE:", readingCode},
	{"OUT:", readingOutput},
}

type draft struct {
	question, answer, code, output string
	hasCode                        bool
}

func (d draft) content() (domain.Content, bool) {
	if d.question == "" {
		return nil, false
	}
	if d.hasCode {
		return domain.CodeContent{Question: d.question, Code: d.code, ExpectedOutput: d.output}, true
	}
	return domain.TextContent{Front: d.question, Back: d.answer}, true
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Content, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards.
func Parse(r io.Reader) ([]domain.Content, error) {
	scanner := bufio.NewScanner(r)
	var (
		cards        []domain.Content
		current      draft
		currentBlock []string
		currentField = seeking
	)

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(currentBlock, "\n"), "\n")
		switch currentField {
		case readingQuestion:
			current.question = content
		case readingAnswer:
			current.answer = content
		case readingCode:
			current.code = content
		case readingOutput:
			current.output = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if c, ok := current.content(); ok {
			cards = append(cards, c)
		}
		current = draft{}
		currentField = seeking
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "---" {
			finishCard()
			continue
		}

		matched := false
		for _, p := range prefixes {
			if !strings.HasPrefix(line, p.prefix) {
				continue
			}
			matched = true
			flushBlock()
			if p.field == readingQuestion && currentField != seeking {
				finishCard() // A new question always starts a new card
			}
			if p.field == readingCode {
				current.hasCode = true
			}
			currentField = p.field
			lineContent := strings.TrimPrefix(line[len(p.prefix):], " ")
			currentBlock = append(currentBlock, lineContent)
			break
		}

		if !matched && currentField != seeking {
			currentBlock = append(currentBlock, line)
		}
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
