package relay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/duskline/pairserver/internal/metrics"
)

// ticTacToeWinLines enumerates the 8 three-in-a-row lines on a 3x3 board.
var ticTacToeWinLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// ticTacToeGame is the per-room referee state for one active game (§4.5).
type ticTacToeGame struct {
	roomID      string
	board       [9]string // "", "X", or "O"
	symbols     map[string]string // userID -> "X"/"O"
	currentTurn string            // "X" or "O"
	lastMoveAt  time.Time
	status      string // "playing", "completed"
	winner      string
	isDraw      bool
}

func newTicTacToeGame(roomID, userA, userB string) *ticTacToeGame {
	symbols := map[string]string{userA: "X", userB: "O"}
	if rand.Intn(2) == 0 {
		symbols[userA] = "O"
		symbols[userB] = "X"
	}
	return &ticTacToeGame{
		roomID:      roomID,
		symbols:     symbols,
		currentTurn: "X",
		lastMoveAt:  time.Now(),
		status:      "playing",
	}
}

// move validates and applies a move for userID at position. Returns whether
// the move was accepted.
func (g *ticTacToeGame) move(userID string, position int) bool {
	if g.status != "playing" {
		return false
	}
	if position < 0 || position > 8 {
		return false
	}
	symbol, ok := g.symbols[userID]
	if !ok || symbol != g.currentTurn {
		return false
	}
	if g.board[position] != "" {
		return false
	}

	g.board[position] = symbol
	g.lastMoveAt = time.Now()

	if g.checkWin(symbol) {
		g.status = "completed"
		g.winner = symbol
		return true
	}
	if g.checkDraw() {
		g.status = "completed"
		g.isDraw = true
		return true
	}

	if g.currentTurn == "X" {
		g.currentTurn = "O"
	} else {
		g.currentTurn = "X"
	}
	return true
}

func (g *ticTacToeGame) checkWin(symbol string) bool {
	for _, line := range ticTacToeWinLines {
		if g.board[line[0]] == symbol && g.board[line[1]] == symbol && g.board[line[2]] == symbol {
			return true
		}
	}
	return false
}

func (g *ticTacToeGame) checkDraw() bool {
	for _, cell := range g.board {
		if cell == "" {
			return false
		}
	}
	return true
}

// symbolFor returns the symbol assigned to userID, plus whether userID
// moves first (i.e. is the "X" player).
func (g *ticTacToeGame) symbolFor(userID string) (symbol string, movesFirst bool) {
	s := g.symbols[userID]
	return s, s == "X"
}

// GameReferee tracks active refereed tic-tac-toe games keyed by room id
// (§4.5 "minimal game refereeing"). Other games listed by the client are
// forwarded verbatim by SessionRelay and never reach this referee.
type GameReferee struct {
	mu    sync.Mutex
	games map[string]*ticTacToeGame
}

// NewGameReferee constructs an empty referee.
func NewGameReferee() *GameReferee {
	return &GameReferee{games: make(map[string]*ticTacToeGame)}
}

// Start creates a new game for roomID, replacing any prior game there
// (used both for the initial game-response accept and for rematches).
func (g *GameReferee) Start(roomID, userA, userB string) *ticTacToeGame {
	g.mu.Lock()
	defer g.mu.Unlock()
	game := newTicTacToeGame(roomID, userA, userB)
	if _, replacing := g.games[roomID]; !replacing {
		metrics.GamesActiveGauge.Inc()
	}
	g.games[roomID] = game
	return game
}

// Move applies a move and returns the game's post-move state, or nil if the
// room has no active game or the move was rejected.
func (g *GameReferee) Move(roomID, userID string, position int) *ticTacToeGame {
	g.mu.Lock()
	defer g.mu.Unlock()
	game, ok := g.games[roomID]
	if !ok {
		return nil
	}
	if !game.move(userID, position) {
		return nil
	}
	return game
}

// End removes a game (partner disconnect or cancel), returning it if present.
func (g *GameReferee) End(roomID string) *ticTacToeGame {
	g.mu.Lock()
	defer g.mu.Unlock()
	game, ok := g.games[roomID]
	if ok {
		delete(g.games, roomID)
		metrics.GamesActiveGauge.Dec()
	}
	return game
}

// ReapIdle removes and returns the room ids of games inactive past cutoff
// (§4.6 "idle game reap").
func (g *GameReferee) ReapIdle(cutoff time.Time) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var reaped []string
	for roomID, game := range g.games {
		if game.lastMoveAt.Before(cutoff) {
			reaped = append(reaped, roomID)
			delete(g.games, roomID)
			metrics.GamesActiveGauge.Dec()
		}
	}
	return reaped
}
