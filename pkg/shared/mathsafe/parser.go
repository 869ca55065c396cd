package mathsafe

import "fmt"

// MaxDepth is the maximum AST depth a parsed expression may reach.
const MaxDepth = 20

// whitelistedFuncs is the closed set of callable function names.
var whitelistedFuncs = map[string]struct{}{
	"log": {}, "sqrt": {}, "min": {}, "max": {},
	"abs": {}, "ceil": {}, "floor": {}, "pow": {},
}

type parser struct {
	toks []token
	pos  int
}

func parse(expr string) (node, error) {
	lex := newLexer(expr)
	toks, err := lex.tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("mathsafe: unexpected trailing token %q", p.cur().text)
	}
	if n.depth() > MaxDepth {
		return nil, fmt.Errorf("mathsafe: expression exceeds max AST depth %d", MaxDepth)
	}
	return n, nil
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.cur().kind {
	case tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE:
		op := p.advance().kind
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().kind {
		case tokPlus, tokMinus:
			op := p.advance().kind
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().kind {
		case tokStar, tokSlash, tokDSlash, tokPercent:
			op := p.advance().kind
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.cur().kind == tokMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: tokMinus, operand: operand}, nil
	}
	if p.cur().kind == tokPlus {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.cur()
	switch tok.kind {
	case tokNumber:
		p.advance()
		return &numberNode{value: tok.num}, nil
	case tokLParen:
		p.advance()
		n, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.cur().kind != tokRParen {
			return nil, fmt.Errorf("mathsafe: expected ')'")
		}
		p.advance()
		return n, nil
	case tokIdent:
		name := tok.text
		p.advance()
		if p.cur().kind == tokLParen {
			if _, ok := whitelistedFuncs[name]; !ok {
				return nil, fmt.Errorf("mathsafe: function %q is not whitelisted", name)
			}
			p.advance()
			var args []node
			if p.cur().kind != tokRParen {
				for {
					arg, err := p.parseComparison()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.cur().kind == tokComma {
						p.advance()
						continue
					}
					break
				}
			}
			if p.cur().kind != tokRParen {
				return nil, fmt.Errorf("mathsafe: expected ')' after call arguments")
			}
			p.advance()
			return &callNode{fn: name, args: args}, nil
		}
		return &varNode{name: name}, nil
	}
	return nil, fmt.Errorf("mathsafe: unexpected token %q", tok.text)
}
