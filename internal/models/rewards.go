package models

// RewardRules maps exact final ranks to coins
type RewardRules struct {
	Rewards []RankReward `json:"rewards" yaml:"rewards"`
}

// RankReward pays Coins to the participant finishing at Rank
type RankReward struct {
	Rank  int `json:"rank" yaml:"rank"`
	Coins int `json:"coins" yaml:"coins"`
}

// Clone returns a deep copy
func (r *RewardRules) Clone() *RewardRules {
	if r == nil {
		return nil
	}
	return &RewardRules{Rewards: append([]RankReward(nil), r.Rewards...)}
}
