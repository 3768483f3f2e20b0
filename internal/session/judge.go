package session

import "strings"

type verdict int

const (
	verdictAdvance verdict = iota
	verdictSolved
	verdictFailed
	verdictBroken
)

// judgment is the outcome of judging one submitted move. The judge also
// mutates the player's attempt state (board, step, viability, status).
type judgment struct {
	verdict      verdict
	moveSAN      string // canonical SAN of the player's move, when legal
	opponentSAN  string // applied simulated reply, when any
	nextExpected bool
	lineID       int    // completed line id on verdictSolved
	expectedMove string // primary expected token, reported to the admin
}

// judgeMove validates moveText against the player's current attempt state
// and the puzzle's solution lines.
//
// An illegal move is an immediate failure: it cannot match any line. A
// legal move is compared, by canonical SAN and case-insensitively, with
// the token every still-viable line expects at the current progress index;
// non-matching lines are pruned and the attempt fails only when none
// remains. When all surviving lines agree on the following token it is the
// simulated opponent's reply and is applied automatically from the reached
// position; when they disagree the engine cannot commit to a line yet, so
// no reply is simulated and the player's next submission disambiguates.
// An illegal configured reply is an admin configuration error
// (verdictBroken), not a player failure, but still closes the attempt.
func judgeMove(p *Player, lines []SolutionLine, moveText string) judgment {
	expected := ""
	if len(p.viable) > 0 {
		if line := lines[p.viable[0]]; p.Step < len(line.Moves) {
			expected = line.Moves[p.Step]
		}
	}

	newPos, san, err := p.Board.Apply(moveText)
	if err != nil {
		p.Status = AttemptFailed
		return judgment{verdict: verdictFailed, expectedMove: expected}
	}

	matched := p.viable[:0:0]
	for _, li := range p.viable {
		moves := lines[li].Moves
		if p.Step < len(moves) && strings.EqualFold(moves[p.Step], san) {
			matched = append(matched, li)
		}
	}
	if len(matched) == 0 {
		p.Status = AttemptFailed
		return judgment{verdict: verdictFailed, moveSAN: san, expectedMove: expected}
	}

	p.Board = newPos
	p.Step++
	p.Status = AttemptSolving
	p.viable = matched

	// A line exhausted by the player's own move solves the puzzle without
	// an opponent reply (odd-length lines). First match wins by priority.
	if id, ok := exhaustedLine(lines, matched, p.Step); ok {
		p.Status = AttemptSolved
		p.SolvedLineID = id
		return judgment{verdict: verdictSolved, moveSAN: san, lineID: id}
	}

	replyToken, unambiguous := sharedNextToken(lines, matched, p.Step)
	if !unambiguous {
		// Viable lines diverge on the next token; the player's next move
		// commits to one of them.
		return judgment{verdict: verdictAdvance, moveSAN: san, nextExpected: true}
	}

	afterReply, replySAN, err := p.Board.Apply(replyToken)
	if err != nil {
		p.Status = AttemptFailed
		return judgment{verdict: verdictBroken, moveSAN: san, expectedMove: replyToken}
	}
	p.Board = afterReply
	p.Step++

	if id, ok := exhaustedLine(lines, matched, p.Step); ok {
		p.Status = AttemptSolved
		p.SolvedLineID = id
		return judgment{verdict: verdictSolved, moveSAN: san, opponentSAN: replySAN, lineID: id}
	}
	return judgment{verdict: verdictAdvance, moveSAN: san, opponentSAN: replySAN, nextExpected: true}
}

// exhaustedLine returns the id of the first viable line whose move
// sequence ends exactly at step.
func exhaustedLine(lines []SolutionLine, viable []int, step int) (int, bool) {
	for _, li := range viable {
		if len(lines[li].Moves) == step {
			return lines[li].ID, true
		}
	}
	return 0, false
}

// sharedNextToken reports the token every viable line expects at step,
// when they all agree on it (case-insensitively).
func sharedNextToken(lines []SolutionLine, viable []int, step int) (string, bool) {
	token := ""
	for _, li := range viable {
		moves := lines[li].Moves
		if step >= len(moves) {
			return "", false
		}
		if token == "" {
			token = moves[step]
			continue
		}
		if !strings.EqualFold(token, moves[step]) {
			return "", false
		}
	}
	return token, token != ""
}
