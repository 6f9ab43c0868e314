package swiss

import "slices"

type Pairing struct {
	Player1 Standing  `json:"player1"`
	Player2 *Standing `json:"player2"`
	IsBye   bool      `json:"isBye"`
}

// GeneratePairings walks the standings top-down, pairing each player with the
// first remaining player they have not met yet. When every remaining player
// is a rematch, the next one in order is taken anyway. An odd player out gets
// the bye. The result is greedy, not a globally optimal matching.
func GeneratePairings(standings []Standing) []Pairing {
	unpaired := slices.Clone(standings)
	pairings := make([]Pairing, 0, (len(unpaired)+1)/2)

	for len(unpaired) > 1 {
		player := unpaired[0]
		rest := unpaired[1:]

		pick := 0
		for i := range rest {
			if !player.HasPlayed(rest[i].UserID) {
				pick = i
				break
			}
		}

		opponent := rest[pick]
		pairings = append(pairings, Pairing{Player1: player, Player2: &opponent})

		unpaired = slices.Delete(unpaired, pick+1, pick+2)
		unpaired = unpaired[1:]
	}

	if len(unpaired) == 1 {
		pairings = append(pairings, Pairing{Player1: unpaired[0], IsBye: true})
	}

	return pairings
}

// TotalRounds is ceil(log2(players)), and 0 below two players.
func TotalRounds(players int) int {
	if players < 2 {
		return 0
	}
	rounds := 0
	for 1<<rounds < players {
		rounds++
	}
	return rounds
}
