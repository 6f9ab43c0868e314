// Package swiss holds the pure parts of Swiss tournament running: tiebreak
// standings and greedy next-round pairing.
package swiss

import (
	"sort"

	"github.com/AdamBeresnev/duel-organizer/internal/bracket"
	"github.com/google/uuid"
)

// MinWinRate floors every opponent's match-win rate when computing OMW and OOMW.
const MinWinRate = 0.33

// Byes are scored as a 2-0 match win.
const byeGameWins = 2

type Player struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	Tag         string    `json:"tag"`
}

type Standing struct {
	Player
	MatchWins   int         `json:"matchWins"`
	MatchLosses int         `json:"matchLosses"`
	GameWins    int         `json:"gameWins"`
	GameLosses  int         `json:"gameLosses"`
	OMW         float64     `json:"omw"`
	GW          float64     `json:"gw"`
	OOMW        float64     `json:"oomw"`
	Opponents   []uuid.UUID `json:"opponents"`
}

func (s *Standing) HasPlayed(userID uuid.UUID) bool {
	for _, id := range s.Opponents {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Standing) matchWinRate() float64 {
	decided := s.MatchWins + s.MatchLosses
	if decided == 0 {
		return MinWinRate
	}
	return max(MinWinRate, float64(s.MatchWins)/float64(decided))
}

type groupedMatch struct {
	winnerTeamID *int
	isBye        bool
	seats        []bracket.MatchRow
}

// groupByMatch folds the flattened rows back into matches, keeping first-seen order.
func groupByMatch(rows []bracket.MatchRow) []*groupedMatch {
	index := make(map[uuid.UUID]*groupedMatch)
	var ordered []*groupedMatch
	for _, row := range rows {
		m, ok := index[row.MatchID]
		if !ok {
			m = &groupedMatch{winnerTeamID: row.WinnerTeamID, isBye: row.IsBye}
			index[row.MatchID] = m
			ordered = append(ordered, m)
		}
		m.seats = append(m.seats, row)
	}
	return ordered
}

// CalculateStandings scores every player from completed match rows and returns
// them ranked by match wins, then OMW, then OOMW. GW is reported but never
// used for ordering.
func CalculateStandings(players []Player, rows []bracket.MatchRow) []Standing {
	index := make(map[uuid.UUID]*Standing, len(players))
	ordered := make([]*Standing, 0, len(players))
	for _, p := range players {
		if _, dup := index[p.UserID]; dup {
			continue
		}
		s := &Standing{Player: p, Opponents: []uuid.UUID{}}
		index[p.UserID] = s
		ordered = append(ordered, s)
	}

	for _, m := range groupByMatch(rows) {
		if m.isBye {
			if s := index[m.seats[0].PlayerID]; s != nil {
				s.MatchWins++
				s.GameWins += byeGameWins
			}
			continue
		}
		if len(m.seats) != 2 {
			continue
		}
		credit(index[m.seats[0].PlayerID], m.seats[0], m.seats[1], m.winnerTeamID)
		credit(index[m.seats[1].PlayerID], m.seats[1], m.seats[0], m.winnerTeamID)
	}

	// First hop: every player's OMW from their opponents' floored win rates.
	omw := make(map[uuid.UUID]float64, len(ordered))
	for _, s := range ordered {
		if len(s.Opponents) == 0 {
			omw[s.UserID] = MinWinRate
			continue
		}
		var total float64
		for _, oppID := range s.Opponents {
			if opp := index[oppID]; opp != nil {
				total += opp.matchWinRate()
			} else {
				total += MinWinRate
			}
		}
		omw[s.UserID] = total / float64(len(s.Opponents))
	}

	// Second hop: average of the opponents' OMW. Stops here on purpose.
	for _, s := range ordered {
		s.OMW = omw[s.UserID]
		s.OOMW = MinWinRate
		if len(s.Opponents) > 0 {
			var total float64
			for _, oppID := range s.Opponents {
				if v, ok := omw[oppID]; ok {
					total += v
				} else {
					total += MinWinRate
				}
			}
			s.OOMW = total / float64(len(s.Opponents))
		}

		if games := s.GameWins + s.GameLosses; games > 0 {
			s.GW = float64(s.GameWins) / float64(games)
		}
	}

	standings := make([]Standing, len(ordered))
	for i, s := range ordered {
		standings[i] = *s
	}
	SortStandings(standings)
	return standings
}

func credit(s *Standing, own, opp bracket.MatchRow, winnerTeamID *int) {
	if s == nil {
		return
	}
	s.Opponents = append(s.Opponents, opp.PlayerID)
	s.GameWins += own.GamesWon
	s.GameLosses += opp.GamesWon

	if winnerTeamID == nil {
		return
	}
	if *winnerTeamID == own.TeamID {
		s.MatchWins++
	} else {
		s.MatchLosses++
	}
}

// SortStandings orders by match wins, OMW, then OOMW, all descending. Full
// ties keep their input order.
func SortStandings(standings []Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.MatchWins != b.MatchWins {
			return a.MatchWins > b.MatchWins
		}
		if a.OMW != b.OMW {
			return a.OMW > b.OMW
		}
		return a.OOMW > b.OOMW
	})
}
