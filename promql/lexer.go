package promql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Item represents a token returned from the lexer.
type Item struct {
	Typ ItemType // The type of this Item.
	Pos Pos      // The starting position, in bytes, of this Item in the input string.
	Val string   // The value of this Item.
}

// String returns a descriptive string for the Item.
func (i Item) String() string {
	switch {
	case i.Typ == EOF:
		return "EOF"
	case i.Typ == ERROR:
		return i.Val
	case i.Typ == IDENTIFIER || i.Typ == METRIC_IDENTIFIER:
		return fmt.Sprintf("%q", i.Val)
	case i.Typ.IsKeyword():
		return fmt.Sprintf("<%s>", i.Val)
	case i.Typ.IsOperator():
		return fmt.Sprintf("<op:%s>", i.Val)
	case i.Typ.IsAggregator():
		return fmt.Sprintf("<aggr:%s>", i.Val)
	case len(i.Val) > 10:
		return fmt.Sprintf("%.10q...", i.Val)
	}
	return fmt.Sprintf("%q", i.Val)
}

// desc returns the description of the Item used in error messages.
func (i Item) desc() string {
	if _, ok := itemTypeStr[i.Typ]; ok {
		return i.String()
	}
	if i.Typ == EOF {
		return i.Typ.desc()
	}
	return fmt.Sprintf("%s %s", i.Typ.desc(), i)
}

// PositionRange returns the position range covered by the Item.
func (i Item) PositionRange() PositionRange {
	return PositionRange{
		Start: i.Pos,
		End:   i.Pos + Pos(len(i.Val)),
	}
}

// ItemType identifies the kind of lexed Item.
type ItemType int

// IsOperator returns true if the Item corresponds to a arithmetic or
// set operator. Returns false otherwise.
func (i ItemType) IsOperator() bool { return i > operatorsStart && i < operatorsEnd }

// IsAggregator returns true if the Item belongs to the aggregator functions.
func (i ItemType) IsAggregator() bool { return i > aggregatorsStart && i < aggregatorsEnd }

// IsAggregatorWithParam returns true if the Item is an aggregator that takes a parameter.
func (i ItemType) IsAggregatorWithParam() bool {
	return i == TOPK || i == BOTTOMK || i == COUNT_VALUES || i == QUANTILE
}

// IsKeyword returns true if the Item corresponds to a keyword.
func (i ItemType) IsKeyword() bool { return i > keywordsStart && i < keywordsEnd }

// IsComparisonOperator returns true if the Item corresponds to a comparison operator.
func (i ItemType) IsComparisonOperator() bool {
	switch i {
	case EQLC, NEQ, LTE, LSS, GTE, GTR:
		return true
	default:
		return false
	}
}

// IsSetOperator returns whether the Item corresponds to a set operator.
func (i ItemType) IsSetOperator() bool {
	switch i {
	case LAND, LOR, LUNLESS:
		return true
	}
	return false
}

// Constants for operator precedence in expressions.
const LowestPrec = 0 // Non-operators.

// Precedence returns the operator precedence of the binary operator op.
// If op is not a binary operator, the result is LowestPrec.
func (i ItemType) Precedence() int {
	switch i {
	case LOR:
		return 1
	case LAND, LUNLESS:
		return 2
	case EQLC, NEQ, LTE, LSS, GTE, GTR:
		return 3
	case ADD, SUB:
		return 4
	case MUL, DIV, MOD, ATAN2:
		return 5
	case POW:
		return 6
	default:
		return LowestPrec
	}
}

// IsRightAssociative returns true for operators that group to the right.
func (i ItemType) IsRightAssociative() bool {
	return i == POW
}

const (
	ERROR ItemType = iota
	EOF
	COMMENT
	IDENTIFIER
	METRIC_IDENTIFIER
	LEFT_PAREN
	RIGHT_PAREN
	LEFT_BRACE
	RIGHT_BRACE
	LEFT_BRACKET
	RIGHT_BRACKET
	COMMA
	COLON
	STRING
	NUMBER
	DURATION
	AT

	operatorsStart
	// Operators.
	SUB
	ADD
	MUL
	MOD
	DIV
	POW
	ATAN2
	LAND
	LOR
	LUNLESS
	EQL
	EQLC
	NEQ
	LTE
	LSS
	GTE
	GTR
	EQL_REGEX
	NEQ_REGEX
	operatorsEnd

	aggregatorsStart
	// Aggregators.
	AVG
	BOTTOMK
	COUNT
	COUNT_VALUES
	GROUP
	MAX
	MIN
	QUANTILE
	STDDEV
	STDVAR
	SUM
	TOPK
	aggregatorsEnd

	keywordsStart
	// Keywords.
	BOOL
	BY
	GROUP_LEFT
	GROUP_RIGHT
	IGNORING
	OFFSET
	ON
	WITHOUT
	keywordsEnd
)

// key maps the case-sensitive keyword set to its token types. The
// preprocessors start() and end() are not in here; they are only
// meaningful after @ and resolved contextually by the parser.
var key = map[string]ItemType{
	// Operators.
	"and":    LAND,
	"or":     LOR,
	"unless": LUNLESS,
	"atan2":  ATAN2,

	// Aggregators.
	"sum":          SUM,
	"avg":          AVG,
	"count":        COUNT,
	"min":          MIN,
	"max":          MAX,
	"group":        GROUP,
	"stddev":       STDDEV,
	"stdvar":       STDVAR,
	"topk":         TOPK,
	"bottomk":      BOTTOMK,
	"count_values": COUNT_VALUES,
	"quantile":     QUANTILE,

	// Keywords.
	"offset":      OFFSET,
	"by":          BY,
	"without":     WITHOUT,
	"on":          ON,
	"ignoring":    IGNORING,
	"group_left":  GROUP_LEFT,
	"group_right": GROUP_RIGHT,
	"bool":        BOOL,
}

// itemTypeStr holds the default string representations for common Items.
var itemTypeStr = map[ItemType]string{
	LEFT_PAREN:    "(",
	RIGHT_PAREN:   ")",
	LEFT_BRACE:    "{",
	RIGHT_BRACE:   "}",
	LEFT_BRACKET:  "[",
	RIGHT_BRACKET: "]",
	COMMA:         ",",
	COLON:         ":",
	AT:            "@",

	SUB:       "-",
	ADD:       "+",
	MUL:       "*",
	MOD:       "%",
	DIV:       "/",
	POW:       "^",
	EQL:       "=",
	EQLC:      "==",
	NEQ:       "!=",
	LTE:       "<=",
	LSS:       "<",
	GTE:       ">=",
	GTR:       ">",
	EQL_REGEX: "=~",
	NEQ_REGEX: "!~",
}

func init() {
	// Add keywords to Item type strings.
	for s, ty := range key {
		itemTypeStr[ty] = s
	}
}

func (i ItemType) String() string {
	if s, ok := itemTypeStr[i]; ok {
		return s
	}
	return fmt.Sprintf("<Item %d>", i)
}

func (i ItemType) desc() string {
	switch i {
	case ERROR:
		return "error"
	case EOF:
		return "end of input"
	case COMMENT:
		return "comment"
	case IDENTIFIER:
		return "identifier"
	case METRIC_IDENTIFIER:
		return "metric identifier"
	case STRING:
		return "string"
	case NUMBER:
		return "number"
	case DURATION:
		return "duration"
	}
	return fmt.Sprintf("%q", i)
}

// LexKind narrows down the cause of a lexical error.
type LexKind int

const (
	LexNone LexKind = iota
	LexUnterminatedString
	LexInvalidCharacter
	LexInvalidEscape
	LexInvalidNumber
)

func (k LexKind) String() string {
	switch k {
	case LexUnterminatedString:
		return "unterminated string"
	case LexInvalidCharacter:
		return "invalid character"
	case LexInvalidEscape:
		return "invalid escape"
	case LexInvalidNumber:
		return "invalid number"
	}
	return "none"
}

const eof = -1

// stateFn represents the state of the scanner as a function that returns the next state.
type stateFn func(*Lexer) stateFn

// Pos is the position in a string, in bytes.
type Pos int

// Lexer holds the state of the scanner. It performs a single forward
// pass over the input; it is not restartable.
type Lexer struct {
	input string  // The string being scanned.
	state stateFn // The next lexing function to enter.
	pos   Pos     // Current position in the input.
	start Pos     // Start position of this Item.
	width Pos     // Width of last rune read from input.

	itemp       *Item // Pointer to where the next scanned Item should be placed.
	scannedItem bool  // Set to true every time an Item is scanned.

	parenDepth  int     // Nesting depth of ( ) exprs.
	braceOpen   bool    // Whether a { is opened.
	bracketOpen bool    // Whether a [ is opened.
	gotColon    bool    // Whether we got a ':' after [ was opened.
	stringOpen  rune    // Quote rune of the string currently being read.
	lexKind     LexKind // Cause of the error Item, if one was emitted.
}

// Lex returns a lexer over the input, positioned before the first token.
func Lex(input string) *Lexer {
	return &Lexer{
		input: input,
		state: lexStatements,
	}
}

// next returns the next rune in the input.
func (l *Lexer) next() rune {
	if int(l.pos) >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = Pos(w)
	l.pos += l.width
	return r
}

// peek returns but does not consume the next rune in the input.
func (l *Lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// backup steps back one rune. Can only be called once per call of next.
func (l *Lexer) backup() {
	l.pos -= l.width
}

// emit passes an Item back to the client.
func (l *Lexer) emit(t ItemType) {
	*l.itemp = Item{t, l.start, l.input[l.start:l.pos]}
	l.start = l.pos
	l.scannedItem = true
}

// ignore skips over the pending input before this point.
func (l *Lexer) ignore() {
	l.start = l.pos
}

// accept consumes the next rune if it's from the valid set.
func (l *Lexer) accept(valid string) bool {
	if strings.ContainsRune(valid, l.next()) {
		return true
	}
	l.backup()
	return false
}

// acceptRun consumes a run of runes from the valid set.
func (l *Lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
		// consume
	}
	l.backup()
}

// errorf emits an error token carrying the formatted message and
// terminates the scan.
func (l *Lexer) errorf(kind LexKind, format string, args ...interface{}) stateFn {
	*l.itemp = Item{ERROR, l.start, fmt.Sprintf(format, args...)}
	l.lexKind = kind
	l.scannedItem = true
	return nil
}

// NextItem writes the next Item of the input to itemp.
func (l *Lexer) NextItem(itemp *Item) {
	l.scannedItem = false
	l.itemp = itemp

	if l.state != nil {
		for !l.scannedItem {
			l.state = l.state(l)
		}
	} else {
		l.emit(EOF)
	}
}

const lineComment = "#"

// lexStatements is the top-level state for lexing.
func lexStatements(l *Lexer) stateFn {
	if l.braceOpen {
		return lexInsideBraces
	}
	if strings.HasPrefix(l.input[l.pos:], lineComment) {
		return lexLineComment
	}

	switch r := l.next(); {
	case r == eof:
		switch {
		case l.parenDepth != 0:
			return l.errorf(LexInvalidCharacter, "unclosed left parenthesis")
		case l.bracketOpen:
			return l.errorf(LexInvalidCharacter, "unclosed left bracket")
		}
		l.emit(EOF)
		return nil
	case r == ',':
		l.emit(COMMA)
	case isSpace(r):
		return lexSpace
	case r == '*':
		l.emit(MUL)
	case r == '/':
		l.emit(DIV)
	case r == '%':
		l.emit(MOD)
	case r == '+':
		l.emit(ADD)
	case r == '-':
		l.emit(SUB)
	case r == '^':
		l.emit(POW)
	case r == '=':
		switch t := l.peek(); t {
		case '=':
			l.next()
			l.emit(EQLC)
		case '~':
			return l.errorf(LexInvalidCharacter, "unexpected character after '=': %q", t)
		default:
			l.emit(EQL)
		}
	case r == '!':
		switch nr := l.next(); {
		case nr == '=':
			l.emit(NEQ)
		default:
			return l.errorf(LexInvalidCharacter, "unexpected character after '!': %q", nr)
		}
	case r == '<':
		if t := l.peek(); t == '=' {
			l.next()
			l.emit(LTE)
		} else {
			l.emit(LSS)
		}
	case r == '>':
		if t := l.peek(); t == '=' {
			l.next()
			l.emit(GTE)
		} else {
			l.emit(GTR)
		}
	case isDigit(r) || r == '.' && isDigit(l.peek()):
		l.backup()
		return lexNumberOrDuration
	case r == '"' || r == '\'':
		l.stringOpen = r
		return lexString
	case r == '`':
		l.stringOpen = r
		return lexRawString
	case r == 'N' || r == 'n' || r == 'I' || r == 'i':
		n2 := strings.ToLower(l.input[l.pos:])
		if len(n2) < 3 || !isAlphaNumeric(rune(n2[2])) {
			if (r == 'N' || r == 'n') && strings.HasPrefix(n2, "an") {
				l.pos += 2
				l.emit(NUMBER)
				return lexStatements
			}
			if (r == 'I' || r == 'i') && strings.HasPrefix(n2, "nf") {
				l.pos += 2
				l.emit(NUMBER)
				return lexStatements
			}
		}
		fallthrough
	case isAlpha(r):
		l.backup()
		return lexKeywordOrIdentifier
	case r == ':':
		if !l.bracketOpen {
			return l.errorf(LexInvalidCharacter, "unexpected colon %q", r)
		}
		if l.gotColon {
			return l.errorf(LexInvalidCharacter, "unexpected second colon")
		}
		l.gotColon = true
		l.emit(COLON)
		return lexStatements
	case r == '(':
		l.emit(LEFT_PAREN)
		l.parenDepth++
		return lexStatements
	case r == ')':
		l.emit(RIGHT_PAREN)
		l.parenDepth--
		if l.parenDepth < 0 {
			return l.errorf(LexInvalidCharacter, "unexpected right parenthesis %q", r)
		}
		return lexStatements
	case r == '{':
		l.emit(LEFT_BRACE)
		l.braceOpen = true
		return lexInsideBraces
	case r == '[':
		if l.bracketOpen {
			return l.errorf(LexInvalidCharacter, "unexpected left bracket %q", r)
		}
		l.gotColon = false
		l.emit(LEFT_BRACKET)
		l.bracketOpen = true
		return lexStatements
	case r == ']':
		if !l.bracketOpen {
			return l.errorf(LexInvalidCharacter, "unexpected right bracket %q", r)
		}
		l.emit(RIGHT_BRACKET)
		l.bracketOpen = false
		return lexStatements
	case r == '@':
		l.emit(AT)
		return lexStatements
	default:
		return l.errorf(LexInvalidCharacter, "unexpected character: %q", r)
	}
	return lexStatements
}

// lexInsideBraces scans the inside of a vector selector. Keywords are
// scanned as identifiers, except a lone "or" that is not followed by a
// match operator, which separates alternative matcher groups.
func lexInsideBraces(l *Lexer) stateFn {
	if strings.HasPrefix(l.input[l.pos:], lineComment) {
		return lexLineComment
	}

	switch r := l.next(); {
	case r == eof:
		return l.errorf(LexInvalidCharacter, "unexpected end of input inside braces")
	case isSpace(r):
		return lexSpace
	case isAlpha(r):
		l.backup()
		return lexIdentifier
	case r == ',':
		l.emit(COMMA)
	case r == '"' || r == '\'':
		l.stringOpen = r
		return lexString
	case r == '`':
		l.stringOpen = r
		return lexRawString
	case r == '=':
		if l.next() == '~' {
			l.emit(EQL_REGEX)
			break
		}
		l.backup()
		l.emit(EQL)
	case r == '!':
		switch nr := l.next(); {
		case nr == '~':
			l.emit(NEQ_REGEX)
		case nr == '=':
			l.emit(NEQ)
		default:
			return l.errorf(LexInvalidCharacter, "unexpected character after '!' inside braces: %q", nr)
		}
	case r == '{':
		return l.errorf(LexInvalidCharacter, "unexpected left brace %q", r)
	case r == '}':
		l.emit(RIGHT_BRACE)
		l.braceOpen = false
		return lexStatements
	default:
		return l.errorf(LexInvalidCharacter, "unexpected character inside braces: %q", r)
	}
	return lexInsideBraces
}

// lexIdentifier scans an alphanumeric identifier inside braces. The
// word "or" is emitted as an operator unless it is used as a label
// name, i.e. followed by a match operator.
func lexIdentifier(l *Lexer) stateFn {
	for isAlphaNumeric(l.next()) {
		// absorb
	}
	l.backup()
	if l.input[l.start:l.pos] == "or" && !l.aheadMatchOp() {
		l.emit(LOR)
	} else {
		l.emit(IDENTIFIER)
	}
	return lexInsideBraces
}

// aheadMatchOp reports whether the next non-space character starts a
// label match operator.
func (l *Lexer) aheadMatchOp() bool {
	i := int(l.pos)
	for i < len(l.input) && isSpace(rune(l.input[i])) {
		i++
	}
	return i < len(l.input) && (l.input[i] == '=' || l.input[i] == '!')
}

// lexString scans a quoted string. The initial quote has already been seen.
func lexString(l *Lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case '\\':
			return lexEscape
		case eof, '\n':
			return l.errorf(LexUnterminatedString, "unterminated quoted string")
		case l.stringOpen:
			break Loop
		}
	}
	l.emit(STRING)
	return lexStatements
}

// lexRawString scans a raw quoted string. The initial quote has already been seen.
func lexRawString(l *Lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case eof:
			return l.errorf(LexUnterminatedString, "unterminated raw string")
		case l.stringOpen:
			break Loop
		}
	}
	l.emit(STRING)
	return lexStatements
}

// lexEscape scans a string escape sequence. The initial escaping
// character (\) has already been seen.
func lexEscape(l *Lexer) stateFn {
	var n int
	var base, max uint32

	ch := l.next()
	switch ch {
	case 'a', 'b', 'f', 'n', 'r', 't', 'v', '\\', l.stringOpen:
		return lexString
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n, base, max = 3, 8, 255
	case 'x':
		ch = l.next()
		n, base, max = 2, 16, 255
	case 'u':
		ch = l.next()
		n, base, max = 4, 16, unicode.MaxRune
	case 'U':
		ch = l.next()
		n, base, max = 8, 16, unicode.MaxRune
	case eof:
		return l.errorf(LexUnterminatedString, "escape sequence not terminated")
	default:
		return l.errorf(LexInvalidEscape, "unknown escape sequence %q", ch)
	}

	var x uint32
	for n > 0 {
		d := uint32(digitVal(ch))
		if d >= base {
			if ch == eof {
				return l.errorf(LexUnterminatedString, "escape sequence not terminated")
			}
			return l.errorf(LexInvalidEscape, "illegal character %q in escape sequence", ch)
		}
		x = x*base + d
		n--
		if n > 0 {
			ch = l.next()
		}
	}

	if x > max || 0xD800 <= x && x < 0xE000 {
		return l.errorf(LexInvalidEscape, "escape sequence is an invalid Unicode code point")
	}
	return lexString
}

// digitVal returns the digit value of a rune or 16 if the rune is not
// a digit.
func digitVal(ch rune) int {
	switch {
	case '0' <= ch && ch <= '9':
		return int(ch - '0')
	case 'a' <= ch && ch <= 'f':
		return int(ch - 'a' + 10)
	case 'A' <= ch && ch <= 'F':
		return int(ch - 'A' + 10)
	}
	return 16 // Larger than any legal digit val.
}

// lexSpace scans a run of space characters. One space has already been seen.
func lexSpace(l *Lexer) stateFn {
	for isSpace(l.peek()) {
		l.next()
	}
	l.ignore()
	return lexStatements
}

// lexLineComment scans a line comment. Left comment marker is known to be present.
func lexLineComment(l *Lexer) stateFn {
	l.pos += Pos(len(lineComment))
	for r := l.next(); !isEndOfLine(r) && r != eof; {
		r = l.next()
	}
	l.backup()
	l.emit(COMMENT)
	return lexStatements
}

// lexNumberOrDuration scans a number or a duration Item.
func lexNumberOrDuration(l *Lexer) stateFn {
	if l.scanNumber() {
		l.emit(NUMBER)
		return lexStatements
	}
	// The text so far is digits that ran into a letter; a duration unit
	// makes it a duration literal, anything else is malformed.
	return lexDuration
}

// lexDuration scans the remaining <digits><unit> pairs of a duration
// literal. Unit ordering and repetition are validated when the literal
// is parsed, not here.
func lexDuration(l *Lexer) stateFn {
	for {
		if !l.accept("smhdwy") {
			return l.errorf(LexInvalidNumber, "bad number or duration syntax: %q", l.input[l.start:l.pos])
		}
		// Allow the two-letter unit "ms".
		l.accept("s")
		if !isDigit(l.peek()) {
			break
		}
		l.acceptRun("0123456789")
	}
	if isAlphaNumeric(l.peek()) {
		return l.errorf(LexInvalidNumber, "bad number or duration syntax: %q", l.input[l.start:l.pos])
	}
	l.emit(DURATION)
	return lexStatements
}

// scanNumber scans numbers of different formats. The scanned Item is
// not necessarily a valid number. This case is caught by the parser.
func (l *Lexer) scanNumber() bool {
	digits := "0123456789"
	if l.accept("0") && l.accept("xX") {
		digits = "0123456789abcdefABCDEF"
	}
	l.acceptRun(digits)
	if l.accept(".") {
		l.acceptRun(digits)
	}
	if l.accept("eE") {
		l.accept("+-")
		l.acceptRun("0123456789")
	}
	// Next thing must not be alphanumeric.
	return !isAlphaNumeric(l.peek())
}

// lexKeywordOrIdentifier scans an alphanumeric identifier which may contain
// a colon rune. If the identifier is a keyword the respective keyword Item
// is emitted.
func lexKeywordOrIdentifier(l *Lexer) stateFn {
Loop:
	for {
		switch r := l.next(); {
		case isAlphaNumeric(r) || r == ':':
			// absorb.
		default:
			l.backup()
			word := l.input[l.start:l.pos]
			if kw, ok := key[word]; ok {
				l.emit(kw)
			} else if !strings.Contains(word, ":") {
				l.emit(IDENTIFIER)
			} else {
				l.emit(METRIC_IDENTIFIER)
			}
			break Loop
		}
	}
	return lexStatements
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// isEndOfLine reports whether r is an end-of-line character.
func isEndOfLine(r rune) bool {
	return r == '\r' || r == '\n'
}

// isAlphaNumeric reports whether r is an alphabetic, digit, or underscore.
func isAlphaNumeric(r rune) bool {
	return isAlpha(r) || isDigit(r)
}

// isDigit reports whether r is a digit.
func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

// isAlpha reports whether r is an alphabetic or underscore.
func isAlpha(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}
